package admin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parkd/parkd/internal/domain"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
)

func TestValidateLayout(t *testing.T) {
	cell := func(code string, row, col int) postgresrepo.SlotSpec {
		return postgresrepo.SlotSpec{Code: code, Row: row, Col: col, AllowedClass: domain.ClassCar}
	}

	tests := []struct {
		name    string
		layout  MapLayout
		wantErr bool
	}{
		{
			name: "valid grid",
			layout: MapLayout{Rows: 2, Cols: 3, Slots: []postgresrepo.SlotSpec{
				cell("A1", 0, 0), cell("A2", 0, 1), cell("B3", 1, 2),
			}},
		},
		{
			name:   "empty layout is valid",
			layout: MapLayout{Rows: 1, Cols: 1},
		},
		{
			name:    "zero rows",
			layout:  MapLayout{Rows: 0, Cols: 3},
			wantErr: true,
		},
		{
			name: "cell outside grid",
			layout: MapLayout{Rows: 2, Cols: 2, Slots: []postgresrepo.SlotSpec{
				cell("A1", 2, 0),
			}},
			wantErr: true,
		},
		{
			name: "negative column",
			layout: MapLayout{Rows: 2, Cols: 2, Slots: []postgresrepo.SlotSpec{
				cell("A1", 0, -1),
			}},
			wantErr: true,
		},
		{
			name: "missing code",
			layout: MapLayout{Rows: 2, Cols: 2, Slots: []postgresrepo.SlotSpec{
				cell("", 0, 0),
			}},
			wantErr: true,
		},
		{
			name: "duplicate position",
			layout: MapLayout{Rows: 2, Cols: 2, Slots: []postgresrepo.SlotSpec{
				cell("A1", 0, 0), cell("A2", 0, 0),
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLayout(tt.layout)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLayout)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
