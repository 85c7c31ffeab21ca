package store

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/marine-composite/internal/httputil"
	"github.com/banshee-data/marine-composite/internal/monitoring"
)

// AttachAdminRoutes mounts tailsql, a backup download and a JSON run
// listing under /debug/ on mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Provenance DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	debug.Handle("runs", "Recent composite runs as JSON", http.HandlerFunc(db.serveRuns))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("reefcomp-backup-%d.db", db.clock.Now().UnixNano()))
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("backup: write failed: %v", err)
	}
}

type runSummary struct {
	ID                 string    `json:"run_id"`
	CreatedAt          time.Time `json:"created_at"`
	Sensor             string    `json:"sensor"`
	Tiles              []string  `json:"tiles"`
	CalibrationVersion string    `json:"calibration_version"`
	FallbackPixels     int       `json:"fallback_pixels"`
	Confidence         *float64  `json:"confidence,omitempty"`
}

func (db *DB) serveRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := db.Runs(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, runSummary{
			ID:                 run.ID,
			CreatedAt:          run.CreatedAt,
			Sensor:             run.Sensor,
			Tiles:              run.Tiles,
			CalibrationVersion: run.CalibrationVersion,
			FallbackPixels:     run.FallbackPixels,
			Confidence:         run.Confidence,
		})
	}
	httputil.WriteJSONOK(w, out)
}
