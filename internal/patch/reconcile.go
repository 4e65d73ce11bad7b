package patch

import "file-patch-server/internal/models"

// Reconcile re-expresses content substituted by a reviewer as a single edit replacing
// every line of originalContent, and marks the request as modified by the user.
// Applying the returned edits to originalContent yields modifiedContent exactly.
// req itself is not changed.
func Reconcile(originalContent, modifiedContent string, req models.EditRequest) models.EditRequest {
	out := req
	out.Edits = []models.EditSpec{{
		StartLine: 1,
		EndLine:   CountLines(originalContent),
		Content:   modifiedContent,
	}}
	out.ModifiedByUser = true
	return out
}
