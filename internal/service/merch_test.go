package service_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linemk/event-shop/internal/domain/models"
	"github.com/linemk/event-shop/internal/service"
)

func TestMerchService_CreateAndList(t *testing.T) {
	repo := newFakeMerchRepo()
	svc := service.NewMerchService(testLogger(), repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Merchandise{Name: "Poster", Price: decimal.RequireFromString("5.00"), Stock: 20})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	_, err = svc.Create(ctx, &models.Merchandise{Name: "Poster", Price: decimal.RequireFromString("5.00"), Stock: 1})
	assert.ErrorIs(t, err, service.ErrMerchExists)

	_, err = svc.Create(ctx, &models.Merchandise{Name: "Broken", Price: decimal.RequireFromString("-1"), Stock: 1})
	assert.ErrorIs(t, err, service.ErrInvalidQuantity)

	items, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
