package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry, err := NewRegistry(namedJob("generation-recovery"), nil, namedJob("payment-expiry"))
	require.NoError(t, err)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "generation-recovery", jobs[0].Name())
	assert.Equal(t, "payment-expiry", jobs[1].Name())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	_, err := NewRegistry(namedJob("outbox-retention"), namedJob("outbox-retention"))
	assert.ErrorContains(t, err, "registered twice")

	var registry Registry
	assert.Error(t, registry.Register(namedJob("")))
	assert.NoError(t, registry.Register(namedJob("payment-expiry")))
}
