package apperr

import (
	stderrors "errors"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWalksWrappedChain(t *testing.T) {
	err := errors.Wrap(NotFound("transaction not found"), "load transaction")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "load transaction: transaction not found", err.Error())
}

func TestUpstreamKeepsExistingKind(t *testing.T) {
	err := Upstream(Validation("bad leg"), "affirm leg")
	assert.True(t, IsValidation(err))

	raw := stderrors.New("connection refused")
	up := Upstreamf(raw, "fetch balance for %s", "0xabc")
	require.True(t, IsUpstream(up))
	assert.ErrorIs(t, up, raw)
	assert.Equal(t, "fetch balance for 0xabc: connection refused", up.Error())

	assert.Nil(t, Upstream(nil, "noop"))
}

func TestResourceAndUnknown(t *testing.T) {
	err := NotFoundResource("leg was not proven", "transaction")
	assert.Equal(t, "transaction", Resource(err))
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.Equal(t, "", Resource(stderrors.New("plain")))
	assert.Equal(t, "internal", KindInternal.String())
}
