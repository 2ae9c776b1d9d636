// Package window defines the boundary to the windowing collaborator.
//
// The core never creates, destroys, or renders the assistant window; it only
// toggles visibility through an opaque handle supplied from outside.
package window

// Handle is an opaque window owned by the windowing collaborator.
type Handle interface {
	IsVisible() bool
	Show()
	Hide()
	Focus()
}

// Toggle hides a visible window, or shows and focuses a hidden one. This is
// the callback the global hotkey binds.
func Toggle(h Handle) {
	if h == nil {
		return
	}
	if h.IsVisible() {
		h.Hide()
		return
	}
	h.Show()
	h.Focus()
}
