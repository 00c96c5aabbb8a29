package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/JonMunkholm/deliveryingest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	counts   store.RowCounts
	countErr error
	resetErr error
	resets   int
}

func (f *fakeResetter) CountRows(context.Context) (store.RowCounts, error) {
	return f.counts, f.countErr
}

func (f *fakeResetter) ResetData(context.Context) error {
	f.resets++
	return f.resetErr
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestReset(t *testing.T) {
	f := &fakeResetter{counts: store.RowCounts{Restaurants: 2, Orders: 5, Jobs: 1, ProcessedFiles: 1}}

	got, err := Reset(context.Background(), f, quiet)
	require.NoError(t, err)
	assert.Equal(t, f.counts, got)
	assert.Equal(t, 1, f.resets)
}

func TestReset_Errors(t *testing.T) {
	f := &fakeResetter{countErr: errors.New("boom")}
	_, err := Reset(context.Background(), f, quiet)
	assert.ErrorContains(t, err, "count rows")
	assert.Zero(t, f.resets, "no truncate after a failed count")

	f = &fakeResetter{resetErr: errors.New("locked")}
	_, err = Reset(context.Background(), f, quiet)
	assert.ErrorContains(t, err, "reset data")
}
