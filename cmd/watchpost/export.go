package main

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/facilityops/watchpost/internal/catalog"
	"github.com/facilityops/watchpost/internal/datastore"
	"github.com/facilityops/watchpost/internal/datastore/entities"
	"github.com/facilityops/watchpost/internal/datastore/repository"
	"github.com/facilityops/watchpost/internal/export"
	"github.com/facilityops/watchpost/internal/logger"
	"github.com/facilityops/watchpost/internal/watch"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	format     string
	out        string
	targetType string
	status     string
}

func newExportCommand(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write watch rules from the configured database as CSV or XLSX",
		Example: `  watchpost export -c watchpost.yaml --out rules.csv
  watchpost export -c watchpost.yaml --format xlsx --status active --out active.xlsx
  watchpost export -c watchpost.yaml --out sftp://ops@files.example.com/exports/rules.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "csv or xlsx (default: from --out extension, else csv)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "-", "output file, ftp:// or sftp:// URL, - for stdout")
	cmd.Flags().StringVar(&opts.targetType, "target-type", "", "only export person or vehicle rules")
	cmd.Flags().StringVar(&opts.status, "status", "", "only export active, ended or expired rules")
	return cmd
}

func (o *exportOptions) resolveFormat() (string, error) {
	format := strings.ToLower(o.format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(o.out)), ".")
		if format != "xlsx" {
			format = "csv"
		}
	}
	switch format {
	case "csv", "xlsx":
		return format, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", o.format)
	}
}

func (o *exportOptions) filter() (watch.Filter, error) {
	f := watch.Filter{
		TargetType: entities.TargetType(o.targetType),
		Status:     entities.RuleStatus(o.status),
	}
	if f.TargetType != "" && !f.TargetType.Valid() {
		return f, fmt.Errorf("invalid target type %q", o.targetType)
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, fmt.Errorf("invalid status %q", o.status)
	}
	return f, nil
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions) error {
	format, err := opts.resolveFormat()
	if err != nil {
		return err
	}
	filter, err := opts.filter()
	if err != nil {
		return err
	}

	settings, log, err := root.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	loc, err := settings.ExportLocation()
	if err != nil {
		return err
	}

	db, err := datastore.Open(settings.Database)
	if err != nil {
		return err
	}
	defer func() { _ = datastore.Close(db) }()

	cat := catalog.NewService(repository.NewCatalogRepository(db), settings.Catalog.CacheTTL.Std(), log)
	store := watch.NewStore(repository.NewWatchRuleRepository(db), cat, watch.WithLogger(log))
	rules, err := store.ListRules(cmd.Context(), filter)
	if err != nil {
		return err
	}

	exportOpts := export.Options{Location: loc, Encoding: settings.Export.Encoding}
	var buf bytes.Buffer
	if format == "xlsx" {
		err = export.WriteXLSX(&buf, rules, exportOpts)
	} else {
		err = export.WriteCSV(&buf, rules, exportOpts)
	}
	if err != nil {
		return err
	}

	switch {
	case opts.out == "-":
		_, err = buf.WriteTo(cmd.OutOrStdout())
	case export.IsRemote(opts.out):
		err = export.Upload(cmd.Context(), opts.out, buf.Bytes(), export.RemoteOptions{
			Timeout:        settings.Export.Remote.Timeout.Std(),
			KnownHostsPath: settings.Export.Remote.KnownHosts,
			KeyFile:        settings.Export.Remote.KeyFile,
		})
	default:
		err = writeFile(opts.out, buf.Bytes())
	}
	if err != nil {
		return err
	}
	log.Info("watch rules exported",
		logger.Int("rules", len(rules)),
		logger.String("format", format),
		logger.String("out", redactDestination(opts.out)))
	return nil
}

// writeFile creates path only once the document is rendered and removes it
// again when the write or close fails.
func writeFile(path string, data []byte) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func redactDestination(dest string) string {
	if !export.IsRemote(dest) {
		return dest
	}
	u, err := url.Parse(dest)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
