package httpapi

import (
	"net/http"
)

func (a *API) handleGames(w http.ResponseWriter, r *http.Request) {
	overall, err := a.deps.Catalog.Health(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"games": overall.Products,
	})
}

func (a *API) handleGamesStatus(w http.ResponseWriter, r *http.Request) {
	overall, err := a.deps.Catalog.Health(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overall)
}

func (a *API) handleGame(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	p, err := a.deps.Catalog.Product(r.Context(), product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	health, err := a.deps.Catalog.ProductHealth(r.Context(), product)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"game":   p,
		"health": health,
	})
}

func (a *API) handleGameStatus(w http.ResponseWriter, r *http.Request) {
	health, err := a.deps.Catalog.ProductHealth(r.Context(), productParam(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (a *API) handleGameVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := a.deps.Catalog.Versions(r.Context(), productParam(r))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"versions": versions,
	})
}

func (a *API) handleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	product := productParam(r)
	if _, err := a.deps.Catalog.Product(r.Context(), product); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Checker.Check(r.Context(), product))
}
