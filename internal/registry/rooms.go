package registry

import "github.com/mossy-p/storefront-realtime/internal/models"

// Room names are deterministic from identity, role, storefront code or call
// id so publishers never need a membership lookup before emitting.
const (
	RoomAdmins  = "admins"
	RoomClients = "clients"
)

func IdentityRoom(id string) string {
	return "identity:" + id
}

func RoleRoom(role models.Role) string {
	return "role:" + string(role)
}

// AdminRoom groups a connection under its assigned admin.
func AdminRoom(adminID string) string {
	return "admin:" + adminID
}

func StorefrontRoom(code string) string {
	return "storefront:" + code
}

func CallRoom(callID string) string {
	return "call:" + callID
}
