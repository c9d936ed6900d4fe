// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-idbridge.
//
// go-idbridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"
	"strings"

	"github.com/jeremyhahn/go-idbridge/pkg/directory"
)

// GetProfileHandler returns the user's directory profile with group
// membership and the derived admin flag.
func (h *HandlerContext) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	attrs, err := h.directory.UserAttributes(r.Context(), sess.Username)
	if err != nil {
		h.handleError(w, err)
		return
	}
	groups, err := h.directory.UserGroups(r.Context(), sess.Username)
	if err != nil {
		h.handleError(w, err)
		return
	}

	user := directory.UserFromAttributes(sess.Username, attrs)
	writeJSON(w, ProfileResponse{
		Username:  user.Username,
		Name:      user.Name,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Groups:    groups,
		Admin:     h.isAdmin(groups),
	}, http.StatusOK)
}

// UpdateProfileHandler replaces the user's editable profile attributes.
func (h *HandlerContext) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var req ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	changes := make(map[string]string)
	if req.Name != "" {
		changes["displayName"] = req.Name
	}
	if req.FirstName != "" {
		changes["cn"] = req.FirstName
	}
	if req.LastName != "" {
		changes["sn"] = req.LastName
	}
	if req.Email != "" {
		changes["mail"] = req.Email
	}
	if len(changes) == 0 {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	if err := h.directory.ModifyUserAttributes(r.Context(), sess.Username, changes); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, StatusResponse{Status: "ok"}, http.StatusOK)
}

// isAdmin reports whether the admin group DN appears in the user's groups.
// DN comparison is case-insensitive.
func (h *HandlerContext) isAdmin(groups []string) bool {
	if h.adminGroupDN == "" {
		return false
	}
	for _, group := range groups {
		if strings.EqualFold(group, h.adminGroupDN) {
			return true
		}
	}
	return false
}
