package cases

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/meronaya/legal-backend/internal/auth"
	"github.com/meronaya/legal-backend/pkg/models"
	"github.com/meronaya/legal-backend/pkg/utils"
)

// canTouchDocuments reports whether the user may upload to / read documents
// of the case: the owning client, the assigned lawyer, or staff.
func canTouchDocuments(cs *models.Case, userID string, role string) bool {
	if role == string(models.RoleSuperAdmin) {
		return true
	}
	if cs.ClientID.String() == userID {
		return true
	}
	return cs.LawyerID != nil && cs.LawyerID.String() == userID
}

// Upload Case Documents godoc
// @Summary      Upload case documents (PDF/PNG/JPG)
// @Description  Case owner or assigned lawyer uploads up to 10 files to storage
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id         path      string   true  "case id (uuid)"
// @Param        documents  formData  []file   true  "PDF/PNG/JPG (max 10)"
// @Success      201    {object}  map[string]any  "results"
// @Failure      400    {object}  models.ErrorResponse
// @Failure      403    {object}  models.ErrorResponse
// @Router       /cases/{id}/documents [post]
func (h *Handler) UploadDocuments(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)
	role := auth.MustRole(c)
	caseID := c.Params("id")

	var cs models.Case
	if err := h.db.First(&cs, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if !canTouchDocuments(&cs, userID, role) {
		return fiber.ErrForbidden
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use documents[]")
	}
	files := form.File["documents[]"]
	if len(files) == 0 {
		files = form.File["documents"]
	}
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "documents are required (use key: documents[])")
	}
	if len(files) > 10 {
		return fiber.NewError(fiber.StatusBadRequest, "max 10 files allowed")
	}

	uploaderID := auth.CurrentActor(c).ID
	results := make([]fiber.Map, 0, len(files))

	for _, fh := range files {
		res := fiber.Map{
			"name": fh.Filename,
			"size": fh.Size,
		}

		// Per-file validation; one bad file never fails the batch.
		if fh.Size <= 0 {
			res["error"] = "empty file"
			results = append(results, res)
			continue
		}
		if fh.Size > 10*1024*1024 {
			res["error"] = "max 10MB per file"
			results = append(results, res)
			continue
		}

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		switch ct {
		case "application/pdf", "image/png", "image/jpeg":
			// ok
		default:
			res["error"] = "only PDF, PNG, or JPG are allowed"
			results = append(results, res)
			continue
		}

		f, err := fh.Open()
		if err != nil {
			res["error"] = "open failed"
			results = append(results, res)
			continue
		}
		defer f.Close()

		key := h.sb.MakeObjectKey(caseID, fh.Filename)
		if err := h.sb.Upload(key, f, ct, fh.Size); err != nil {
			res["error"] = "upload failed"
			results = append(results, res)
			continue
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
		rec := models.CaseDocument{
			CaseID:     cs.ID,
			UploadedBy: &uploaderID,
			Key:        key,
			FileName:   fh.Filename,
			FileType:   ext,
			FileSize:   int(fh.Size),
		}
		if err := h.db.Create(&rec).Error; err != nil {
			res["error"] = "database error"
			results = append(results, res)
			continue
		}

		utils.RecordTimeline(c.Context(), h.db, cs.ID, &uploaderID,
			models.EventDocumentUploaded, "Document uploaded", fh.Filename)

		res["id"] = rec.ID
		res["key"] = rec.Key
		results = append(results, res)
	}

	// 201 even when some items failed; callers check "error" per item.
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"results": results})
}

// Signed Download URL godoc
// @Summary      Get signed URL for a case document
// @Description  Case owner or the assigned lawyer obtains a short-lived signed URL
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        docID  path string true "document id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{docID}/signed-url [get]
func (h *Handler) SignedDownloadURL(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)
	role := auth.MustRole(c)
	docID := c.Params("docID")

	var doc models.CaseDocument
	if err := h.db.First(&doc, "id = ?", docID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	var cs models.Case
	if err := h.db.First(&cs, "id = ?", doc.CaseID).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if !canTouchDocuments(&cs, userID, role) {
		return fiber.ErrForbidden
	}

	url, err := h.sb.SignedURL(doc.Key, 60) // seconds
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": 60, "now": time.Now().UTC()})
}

// Delete Document godoc
// @Summary      Delete a case document
// @Description  Only the case owner may delete a document; removal is idempotent in storage
// @Tags         documents
// @Security     BearerAuth
// @Param        docID  path string true "document id (uuid)"
// @Success      200  {object}  map[string]bool
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{docID} [delete]
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)
	docID := c.Params("docID")

	var doc models.CaseDocument
	if err := h.db.First(&doc, "id = ?", docID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	var cs models.Case
	if err := h.db.First(&cs, "id = ?", doc.CaseID).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if cs.ClientID.String() != userID {
		return fiber.ErrForbidden
	}

	if err := h.sb.Delete(doc.Key); err != nil {
		return fiber.ErrInternalServerError
	}
	if err := h.db.Delete(&doc).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}
