package affirm

import "github.com/PolymeshAssociation/confidential-polymesh-rest-api/services/settlement/internal/domain"

type RoleKind int

const (
	RoleNone RoleKind = iota
	RoleSender
	RoleReceiver
	RoleAuditor
)

func (k RoleKind) String() string {
	switch k {
	case RoleSender:
		return "Sender"
	case RoleReceiver:
		return "Receiver"
	case RoleAuditor:
		return "Auditor"
	default:
		return "None"
	}
}

// Role is what a public key is to one (leg, asset) pair. Being the leg's
// receiver and an auditor of the asset are independent facts.
type Role struct {
	Sender       bool
	Receiver     bool
	AuditorIndex int
}

func (r Role) IsAuditor() bool { return r.AuditorIndex >= 0 }

// CanDecrypt reports whether the key's private half could open the amount.
func (r Role) CanDecrypt() bool { return r.Receiver || r.IsAuditor() }

// Kind picks a single classification: sender, then receiver, then auditor.
func (r Role) Kind() RoleKind {
	switch {
	case r.Sender:
		return RoleSender
	case r.Receiver:
		return RoleReceiver
	case r.IsAuditor():
		return RoleAuditor
	default:
		return RoleNone
	}
}

type AssetRole struct {
	AssetID string
	Role    Role
}

func ResolveRole(leg domain.Leg, assetID, key string) Role {
	return roleFor(leg.Sender, leg.Receiver, auditorsOf(leg, assetID), key)
}

func ResolveRoles(leg domain.Leg, key string) []AssetRole {
	out := make([]AssetRole, 0, len(leg.AssetAuditors))
	for _, aa := range leg.AssetAuditors {
		out = append(out, AssetRole{
			AssetID: aa.AssetID,
			Role:    roleFor(leg.Sender, leg.Receiver, aa.Auditors, key),
		})
	}
	return out
}

func roleFor(sender, receiver string, auditors []string, key string) Role {
	r := Role{
		Sender:       key != "" && key == sender,
		Receiver:     key != "" && key == receiver,
		AuditorIndex: -1,
	}
	if key == "" {
		return r
	}
	for i, a := range auditors {
		if a == key {
			r.AuditorIndex = i
			break
		}
	}
	return r
}

func auditorsOf(leg domain.Leg, assetID string) []string {
	auditors, _ := leg.Auditors(assetID)
	return auditors
}
