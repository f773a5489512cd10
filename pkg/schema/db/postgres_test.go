package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenPostgres_RequiresURI(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "")
	assert.EqualError(t, err, "POSTGRES_URI is required")
}
