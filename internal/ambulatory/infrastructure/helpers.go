package infrastructure

import (
	"strconv"
	"strings"

	"github.com/saude-al/ambulatorio/internal/ambulatory/domain"
	"github.com/saude-al/ambulatorio/internal/shared/types"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

func pageOf(filter domain.PatientFilter) (limit, offset int) {
	limit = defaultPageSize
	if filter.Limit > 0 && filter.Limit <= maxPageSize {
		limit = filter.Limit
	}
	offset = filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// digitsOf strips CPF punctuation so "529.982.247-25" matches the stored digits
func digitsOf(s string) string {
	return strings.NewReplacer(".", "", "-", "", " ", "").Replace(s)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func findConsultation(history []domain.Consultation, id types.ID) *domain.Consultation {
	for i := range history {
		if history[i].ID == id {
			return &history[i]
		}
	}
	return nil
}
