package echoapi

import (
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Virtual-Educator/SimLearning/core"
	"github.com/Virtual-Educator/SimLearning/core/simulation"
)

type assetApi struct {
	conf     *core.Config
	verifier simulation.AssetVerifier
}

func registerAssetAPI(g *echo.Group, deps ServerDeps) {
	api := assetApi{
		conf:     deps.Conf,
		verifier: deps.AssetVerifier,
	}

	// no JWT here: <img> tags cannot carry auth headers, the signed URL is the credential
	g.GET("/assets/scenes/*", api.serveScene)
}

// serveScene serves a storage-backed scene file. The signature covers the path
// and expiry, so a URL cannot be replayed for another file or past its window.
func (api *assetApi) serveScene(ctx echo.Context) error {
	path := ctx.Param("*")

	exp, err := strconv.ParseInt(ctx.QueryParam("exp"), 10, 64)
	if err != nil {
		return simulation.ErrAssetForbidden
	}
	if err := api.verifier.Verify(path, exp, ctx.QueryParam("sig")); err != nil {
		return errors.Wrap(err, "verifying asset signature")
	}

	fp := filepath.Join(api.conf.SceneAssetDir, filepath.Clean("/"+path))
	return ctx.File(fp)
}
