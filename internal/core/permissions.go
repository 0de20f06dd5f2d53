package core

// IsAdmin reports whether the actor has the admin role.
func IsAdmin(actor Actor) bool {
	return actor.Role == RoleAdmin
}

// CanEdit reports whether actor may modify a resource owned by ownerID.
// Admins may edit anything. Unowned resources are editable by everyone.
// Otherwise only the owner may edit.
func CanEdit(actor Actor, ownerID *string) bool {
	if IsAdmin(actor) {
		return true
	}
	if ownerID == nil {
		return true
	}
	return actor.ID == *ownerID
}

// CanDelete follows the same policy as CanEdit.
func CanDelete(actor Actor, ownerID *string) bool {
	return CanEdit(actor, ownerID)
}
