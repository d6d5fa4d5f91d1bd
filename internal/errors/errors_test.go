package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	errNotFound Code = "not found"
	errClosed   Code = "closed"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Code
		wantOK bool
	}{
		{"coded", New(errNotFound, "room r1"), errNotFound, true},
		{"bare code", errClosed, errClosed, true},
		{"outermost wins", Wrap(errClosed, New(errNotFound, "room r1"), "aborted"), errClosed, true},
		{"through fmt wrap", fmt.Errorf("leave: %w", New(errNotFound, "x")), errNotFound, true},
		{"uncoded", context.Canceled, "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CodeOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrapKeepsBothCodes(t *testing.T) {
	err := Wrapf(errClosed, New(errNotFound, "room r1"), "visit %d", 2)
	assert.True(t, Is(err, errClosed))
	assert.True(t, Is(err, errNotFound))
	assert.Equal(t, "closed: visit 2: not found: room r1", err.Error())
	assert.Nil(t, Wrap(errClosed, nil, "nothing"))
}

func TestAs(t *testing.T) {
	e, ok := As[*Error](Wrap(errClosed, context.Canceled, "stop"))
	assert.True(t, ok)
	assert.Equal(t, errClosed, (*e).Code)

	_, ok = As[*Error](context.Canceled)
	assert.False(t, ok)
}
