package drafting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lexdraft-bff/pkg/errors"
)

func TestRegistry_OpenGetClose(t *testing.T) {
	reg := NewRegistry(&fakeBackend{}, nil, testOptions())

	id, ctrl := reg.Open(context.Background(), "u1")
	require.NotEmpty(t, id)
	assert.Equal(t, "English", ctrl.Snapshot().Session.Language)

	got, err := reg.Get(id, "u1")
	require.NoError(t, err)
	assert.Same(t, ctrl, got)

	_, err = reg.Get(id, "someone-else")
	assert.True(t, errors.Is(err, apperrors.ErrWizardNotFound))

	require.NoError(t, reg.Close(id, "u1"))
	_, err = reg.Get(id, "u1")
	assert.True(t, errors.Is(err, apperrors.ErrWizardNotFound))
	assert.Error(t, reg.Close(id, "u1"))
}

func TestRegistry_SweepClosesIdleWizards(t *testing.T) {
	reg := NewRegistry(&fakeBackend{}, nil, testOptions())
	staleID, _ := reg.Open(context.Background(), "u1")

	time.Sleep(20 * time.Millisecond)
	freshID, _ := reg.Open(context.Background(), "u1")

	closed := reg.Sweep(context.Background(), 10*time.Millisecond)

	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, reg.Len())
	_, err := reg.Get(staleID, "u1")
	assert.Error(t, err)
	_, err = reg.Get(freshID, "u1")
	assert.NoError(t, err)
}
