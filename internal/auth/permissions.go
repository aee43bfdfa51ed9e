package auth

import (
	"slices"

	"asteriskgui/internal/models"
)

const (
	PermUsersRead     = "users:read"
	PermUsersWrite    = "users:write"
	PermUsersDelete   = "users:delete"
	PermSIPRead       = "sip:read"
	PermSIPWrite      = "sip:write"
	PermSIPDelete     = "sip:delete"
	PermQueuesRead    = "queues:read"
	PermQueuesWrite   = "queues:write"
	PermQueuesDelete  = "queues:delete"
	PermTrunksRead    = "trunks:read"
	PermTrunksWrite   = "trunks:write"
	PermTrunksDelete  = "trunks:delete"
	PermConfigRead    = "config:read"
	PermConfigWrite   = "config:write"
	PermConfigDelete  = "config:delete"
	PermSystemReload  = "system:reload"
	PermSystemRestart = "system:restart"
	PermAuditRead     = "audit:read"
	PermAuditDelete   = "audit:delete"
)

var rolePermissions = map[models.Role][]string{
	models.RoleAdmin: {
		PermUsersRead, PermUsersWrite, PermUsersDelete,
		PermSIPRead, PermSIPWrite, PermSIPDelete,
		PermQueuesRead, PermQueuesWrite, PermQueuesDelete,
		PermTrunksRead, PermTrunksWrite, PermTrunksDelete,
		PermConfigRead, PermConfigWrite, PermConfigDelete,
		PermSystemReload, PermSystemRestart,
		PermAuditRead, PermAuditDelete,
	},
	models.RoleOperator: {
		PermUsersRead,
		PermSIPRead, PermSIPWrite,
		PermQueuesRead, PermQueuesWrite,
		PermTrunksRead, PermTrunksWrite,
		PermConfigRead,
		PermSystemReload,
	},
	models.RoleViewer: {
		PermUsersRead, PermSIPRead, PermQueuesRead, PermTrunksRead, PermConfigRead,
	},
}

// Permissions returns a copy of the permission list granted to role.
func Permissions(role models.Role) []string {
	return slices.Clone(rolePermissions[role])
}

func HasPermission(role models.Role, permission string) bool {
	return slices.Contains(rolePermissions[role], permission)
}
