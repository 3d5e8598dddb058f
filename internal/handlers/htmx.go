package handlers

import "net/http"

// wantsFragment reports whether the response can be a bare fragment. History
// restores replace the whole page, so they always get the full document.
func wantsFragment(r *http.Request) bool {
	if r.Header.Get("HX-History-Restore-Request") == "true" {
		return false
	}
	return r.Header.Get("HX-Request") == "true" || r.Header.Get("HX-Boosted") == "true"
}

// pushURL asks htmx to record path in the browser history after a swap.
func pushURL(w http.ResponseWriter, r *http.Request, path string) {
	if wantsFragment(r) {
		w.Header().Set("HX-Push-Url", path)
	}
}
