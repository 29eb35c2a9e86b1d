package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gavrikov2044-bot/cs-legit/internal/account"
	"github.com/gavrikov2044-bot/cs-legit/internal/artifact"
	"github.com/gavrikov2044-bot/cs-legit/internal/catalog"
	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
)

// authorizeDownload runs the full gate chain for an artifact route.
func (a *API) authorizeDownload(w http.ResponseWriter, r *http.Request, product string) (*account.Account, bool) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return nil, false
	}
	acc, _, err := a.deps.Gate.Authorize(r.Context(), token, r.Header.Get(hwidHeader), product)
	if err != nil {
		handleDomainError(w, r, err)
		return nil, false
	}
	return acc, true
}

func (a *API) handleDownloadLatest(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	acc, ok := a.authorizeDownload(w, r, product)
	if !ok {
		return
	}

	plaintext, blobName, err := a.deps.Artifacts.FetchLatest(product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	// The blob name carries its own version label, so the access log stays
	// complete even when no catalog row backs the blob.
	version, fileName := artifact.BlobVersion(blobName), product+".bin"
	if v, err := a.deps.Catalog.LatestVersion(r.Context(), product); err == nil {
		version = v.Version
		if v.FileName != "" {
			fileName = v.FileName
		}
	} else if !errors.Is(err, catalog.ErrNotFound) {
		handleDomainError(w, r, err)
		return
	}

	a.recordDelivery(r, acc, product, version)
	obs.DownloadsTotal.WithLabelValues(product).Inc()
	serveBlob(w, fileName, plaintext)
}

// handleDownloadLauncher serves the launcher binary itself. It is the one
// artifact anyone may fetch: without it there is no client to log in with.
func (a *API) handleDownloadLauncher(w http.ResponseWriter, r *http.Request) {
	plaintext, _, err := a.deps.Artifacts.FetchLatest("launcher")
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	fileName := "launcher.exe"
	if v, err := a.deps.Catalog.LatestVersion(r.Context(), "launcher"); err == nil && v.FileName != "" {
		fileName = v.FileName
	}
	obs.DownloadsTotal.WithLabelValues("launcher").Inc()
	serveBlob(w, fileName, plaintext)
}

func (a *API) handleDownloadVersion(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	acc, ok := a.authorizeDownload(w, r, product)
	if !ok {
		return
	}

	version, err := a.deps.Catalog.VersionByNumber(r.Context(), product, chi.URLParam(r, "version"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	// Only the newest blob is retained, so superseded version rows 404 here.
	plaintext, err := a.deps.Artifacts.FetchPath(version.FilePath)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	a.recordDelivery(r, acc, product, version.Version)
	obs.DownloadsTotal.WithLabelValues(product).Inc()
	fileName := version.FileName
	if fileName == "" {
		fileName = product + ".bin"
	}
	serveBlob(w, fileName, plaintext)
}

func (a *API) handleOffsets(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	if _, ok := a.authorizeDownload(w, r, product); !ok {
		return
	}
	doc, err := a.deps.Artifacts.Offsets(product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(doc)
}

// handleOffsetsHash is polled on a tight loop, so it only needs a live
// session, not the full license chain.
func (a *API) handleOffsetsHash(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authenticate(w, r); !ok {
		return
	}
	hash, err := a.deps.Artifacts.OffsetsHash(productParam(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hash": hash,
	})
}

// recordDelivery appends the access-log row. Log failures are surfaced to
// operators, never to the downloading client.
func (a *API) recordDelivery(r *http.Request, acc *account.Account, product, version string) {
	err := a.deps.Accounts.AppendAccessLog(r.Context(), &account.AccessLogEntry{
		AccountID:    acc.ID,
		ProductID:    product,
		Version:      version,
		IPAddress:    clientIP(r),
		HWID:         acc.HWID,
		DownloadedAt: time.Now().UTC(),
	})
	if err != nil {
		obs.LogEvent("error", "access log append failed", map[string]any{
			"account": acc.ID, "product": product, "error": err.Error(),
		})
	}
}

func serveBlob(w http.ResponseWriter, fileName string, blob []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(blob)))
	_, _ = w.Write(blob)
}
