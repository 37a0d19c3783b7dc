// Package policy holds the pure read/write decision functions. Callers that
// get a false CanSee must answer not-found, never forbidden, so hidden
// resources are indistinguishable from absent ones.
package policy

import "pressline/internal/model"

// CanSee reports whether the actor may read the resource. The actor may be
// nil (anonymous request). Rules, in order: an unbanned holder of the
// ignore-visibility permission sees everything; an owner sees their own
// resource regardless of its flag; anything public is visible to all.
func CanSee(actor *model.User, resource model.Visible) bool {
	if actor != nil && !actor.IsBanned() && actor.HasPermission(model.PermIgnoreVisibility) {
		return true
	}
	if actor != nil && resource.IsOwnedBy(actor.ID) {
		return true
	}
	return resource.IsVisible()
}

// CanMutate reports whether the actor may modify or delete the resource.
// managePerm is the elevated permission accepted for the resource class
// (manage-channels for channels, manage-posts for posts); pass "" where
// ownership is the only grant, as for comments.
func CanMutate(actor *model.User, resource model.Owned, managePerm string) bool {
	if actor == nil || actor.IsBanned() {
		return false
	}
	if resource.IsOwnedBy(actor.ID) {
		return true
	}
	return managePerm != "" && actor.HasPermission(managePerm)
}

// BypassVisibility computes the per-request "all" flag for listings: an
// unbanned holder of ignore-visibility scans everything. Scope-specific
// grants (channel ownership for a channel's own posts) are OR'ed in by the
// caller.
func BypassVisibility(actor *model.User) bool {
	return actor != nil && !actor.IsBanned() && actor.HasPermission(model.PermIgnoreVisibility)
}
