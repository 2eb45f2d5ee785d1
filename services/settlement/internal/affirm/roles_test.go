package affirm

import (
	"testing"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestResolveRole(t *testing.T) {
	leg := oneLeg()

	sender := ResolveRole(leg, assetX, senderKey)
	assert.Equal(t, RoleSender, sender.Kind())
	assert.False(t, sender.CanDecrypt())

	receiver := ResolveRole(leg, assetX, receiverKy)
	assert.Equal(t, RoleReceiver, receiver.Kind())
	assert.True(t, receiver.CanDecrypt())
	assert.False(t, receiver.IsAuditor())

	auditor := ResolveRole(leg, assetX, auditorKey)
	assert.Equal(t, RoleAuditor, auditor.Kind())
	assert.Equal(t, 0, auditor.AuditorIndex)

	none := ResolveRole(leg, assetX, otherKey)
	assert.Equal(t, RoleNone, none.Kind())
	assert.False(t, none.CanDecrypt())

	// an asset outside the leg has no auditors
	assert.False(t, ResolveRole(leg, assetY, auditorKey).IsAuditor())
	assert.Equal(t, RoleNone, ResolveRole(leg, assetX, "").Kind())
}

func TestResolveRolesReceiverAndAuditorArePerAsset(t *testing.T) {
	leg := domain.Leg{
		Sender:   senderKey,
		Receiver: receiverKy,
		AssetAuditors: []domain.AssetAuditors{
			{AssetID: assetX, Auditors: []string{auditorKey, receiverKy}},
			{AssetID: assetY, Auditors: []string{auditorKey}},
		},
	}
	roles := ResolveRoles(leg, receiverKy)
	assert.Len(t, roles, 2)

	assert.Equal(t, assetX, roles[0].AssetID)
	assert.True(t, roles[0].Role.Receiver)
	assert.Equal(t, 1, roles[0].Role.AuditorIndex)
	assert.Equal(t, RoleReceiver, roles[0].Role.Kind())

	assert.Equal(t, assetY, roles[1].AssetID)
	assert.True(t, roles[1].Role.Receiver)
	assert.False(t, roles[1].Role.IsAuditor())
	assert.Equal(t, "Receiver", roles[1].Role.Kind().String())
}
