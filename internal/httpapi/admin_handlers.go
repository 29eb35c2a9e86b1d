package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/license"
)

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid account id")
	}
	return id, nil
}

func (a *API) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.deps.Catalog.Stats(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.deps.Accounts.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
	})
}

func (a *API) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	acc, err := a.deps.Accounts.Find(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	licenses, err := a.deps.Licenses.AllForAccount(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	downloads, err := a.deps.Accounts.RecentDownloads(r.Context(), id, 20)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      acc,
		"licenses":  licenses,
		"downloads": downloads,
	})
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleAdminBan(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req banRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := a.deps.Accounts.SetBanState(r.Context(), id, true, req.Reason); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"banned": true})
}

func (a *API) handleAdminUnban(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Accounts.SetBanState(r.Context(), id, false, ""); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"banned": false})
}

func (a *API) handleAdminResetHWID(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Accounts.ResetHWID(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hwid_reset": true})
}

func (a *API) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor, _ := accountFromContext(r.Context())
	var actorID int64
	if actor != nil {
		actorID = actor.ID
	}
	if err := a.deps.Accounts.Delete(r.Context(), id, actorID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type extendRequest struct {
	ProductID string `json:"product_id"`
	Days      int    `json:"days"`
}

func (a *API) handleAdminExtendLicense(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := a.deps.Accounts.Find(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	var req extendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.deps.Licenses.Extend(r.Context(), id, req.ProductID, req.Days)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAdminRevokeLicense(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.deps.Licenses.Revoke(r.Context(), id, productParam(r)); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

type issueRequest struct {
	ProductID string `json:"product_id"`
	Days      int    `json:"days"`
	Count     int    `json:"count"`
	Prefix    string `json:"prefix"`
}

func (a *API) handleAdminIssueLicenses(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if _, err := a.deps.Catalog.Product(r.Context(), strings.ToLower(strings.TrimSpace(req.ProductID))); err != nil {
		handleDomainError(w, r, err)
		return
	}
	keys, err := a.deps.Licenses.IssueUnassigned(r.Context(), strings.ToLower(strings.TrimSpace(req.ProductID)), req.Days, req.Count, req.Prefix)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"keys": keys,
	})
}

func (a *API) handleAdminListLicenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := license.Filter{
		ProductID:      strings.TrimSpace(q.Get("product")),
		UnassignedOnly: q.Get("unassigned") == "true",
	}
	if raw := q.Get("expired"); raw != "" {
		expired := raw == "true"
		filter.Expired = &expired
	}
	licenses, err := a.deps.Licenses.ListFiltered(r.Context(), filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"licenses": licenses,
	})
}

func (a *API) handleAdminDeleteLicense(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Licenses.RevokeByKey(r.Context(), chi.URLParam(r, "key")); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type createGameRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (a *API) handleAdminCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.deps.Catalog.CreateProduct(r.Context(), req.ID, req.Name, req.Description)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleAdminUploadVersion ingests a multipart build upload: the plaintext
// file is encrypted into the blob store, registered as the product's active
// version and announced to connected launchers.
func (a *API) handleAdminUploadVersion(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	if _, err := a.deps.Catalog.Product(r.Context(), product); err != nil {
		handleDomainError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file form field is required")
		return
	}
	defer file.Close()

	versionNumber := strings.TrimSpace(r.FormValue("version"))
	if versionNumber == "" {
		writeError(w, r, http.StatusBadRequest, "version form field is required")
		return
	}

	source, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "reading upload failed")
		return
	}
	if len(source) == 0 {
		writeError(w, r, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	stored, err := a.deps.Artifacts.Save(product, versionNumber, header.Filename, source)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "storing artifact failed")
		return
	}
	v, err := a.deps.Catalog.RegisterVersion(r.Context(), &catalog.Version{
		ProductID: product,
		Version:   versionNumber,
		Changelog: strings.TrimSpace(r.FormValue("changelog")),
		FileName:  header.Filename,
		FilePath:  stored.Path,
		FileHash:  stored.Hash,
		FileSize:  int64(len(source)),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	if a.deps.Hub != nil {
		a.deps.Hub.NotifyVersionUpdate(product, versionNumber)
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleAdminUploadOffsets replaces the product's runtime-offsets document.
// An optional build query parameter records which platform build the offsets
// were generated against.
func (a *API) handleAdminUploadOffsets(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	if _, err := a.deps.Catalog.Product(r.Context(), product); err != nil {
		handleDomainError(w, r, err)
		return
	}

	doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "reading body failed")
		return
	}
	if !json.Valid(doc) {
		writeError(w, r, http.StatusBadRequest, "offsets document must be valid JSON")
		return
	}
	if err := a.deps.Artifacts.SaveOffsets(product, doc); err != nil {
		writeError(w, r, http.StatusInternalServerError, "storing offsets failed")
		return
	}
	if build := strings.TrimSpace(r.URL.Query().Get("build")); build != "" {
		err := a.deps.Artifacts.SaveBuildInfo(product, artifact.BuildInfo{
			BuildNumber: build,
			Timestamp:   time.Now().UTC(),
		})
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "storing build info failed")
			return
		}
	}
	hash, err := a.deps.Artifacts.OffsetsHash(product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hash": hash,
	})
}

type setStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// handleAdminToggleStatus is the one-click patch-cycle switch: operational
// flips to updating and anything else flips back to operational.
func (a *API) handleAdminToggleStatus(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	rec, err := a.deps.Catalog.ToggleStatus(r.Context(), product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if a.deps.Hub != nil {
		a.deps.Hub.NotifyStatusChange(product, string(rec.Status), rec.Message)
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleAdminSetStatus(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.deps.Catalog.SetStatus(r.Context(), product, catalog.Status(req.Status), req.Message)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if a.deps.Hub != nil {
		a.deps.Hub.NotifyStatusChange(product, string(rec.Status), rec.Message)
	}
	writeJSON(w, http.StatusOK, rec)
}
