package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/elalerce/records/internal/client"
	"github.com/elalerce/records/internal/config"
	"github.com/elalerce/records/internal/domain/patient"
)

// patientsCmd talks to a running server through internal/client.
func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Query and edit patient records on a running server",
	}
	cmd.PersistentFlags().String("api", "", "Base URL of the records API (default RECORDS_API_URL or "+config.DefaultAPIURL+")")
	cmd.PersistentFlags().Duration("timeout", 15*time.Second, "Request timeout")

	cmd.AddCommand(patientsListCmd())
	cmd.AddCommand(patientsGetCmd())
	cmd.AddCommand(patientsCreateCmd())
	cmd.AddCommand(patientsUpdateCmd())
	return cmd
}

func patientsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List patients, optionally filtered and sorted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			params := listParams(cmd)
			local, _ := cmd.Flags().GetBool("local")

			var records []*patient.Record
			if local {
				records, err = listLocal(cmd.Context(), c, params, clinicLocation())
			} else {
				records, err = c.List(cmd.Context(), params)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), records)
		},
	}
	f := cmd.Flags()
	f.String("text", "", "Case-insensitive text matched against name, national id and diagnosis")
	f.String("sex", "", "M, F or Other")
	f.String("age-range", "", "Inclusive age range such as 18-40 or 66-+")
	f.String("date-from", "", "Earliest admission date (ISO-8601)")
	f.String("date-to", "", "Latest admission date, whole day included (ISO-8601)")
	f.String("sort", "", "name-asc, name-desc, age-asc, age-desc, admission-asc or admission-desc")
	f.Bool("local", false, "Fetch every record and filter/sort on this side")
	return cmd
}

// listParams maps CLI flags onto the list endpoint's query parameters.
func listParams(cmd *cobra.Command) url.Values {
	flags := []struct{ flag, param string }{
		{"text", patient.ParamText},
		{"sex", patient.ParamSex},
		{"age-range", patient.ParamAgeRange},
		{"date-from", patient.ParamDateFrom},
		{"date-to", patient.ParamDateTo},
		{"sort", patient.ParamSortKey},
	}
	params := url.Values{}
	for _, f := range flags {
		if v, _ := cmd.Flags().GetString(f.flag); v != "" {
			params.Set(f.param, v)
		}
	}
	return params
}

// listLocal fetches the unfiltered list and applies the same filter the
// server would, so both sides agree on membership and order. The unfiltered
// list comes back newest first; it is put back into storage order before
// sorting so that ties break the way they do on the server.
func listLocal(ctx context.Context, c *client.Client, params url.Values, loc *time.Location) ([]*patient.Record, error) {
	f, err := patient.ParseFilter(params, loc)
	if err != nil {
		return nil, err
	}
	all, err := c.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	storageOrder(all)
	return f.Apply(all), nil
}

// storageOrder reverses the default newest-first order. Records created at
// the same instant are already in storage order and keep it.
func storageOrder(records []*patient.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}

func patientsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			r, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
}

func patientsCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a patient from a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			var in patient.CreateInput
			if err := readDocument(cmd, &in); err != nil {
				return err
			}
			r, err := c.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
	documentFlags(cmd)
	return cmd
}

func patientsUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Apply a partial JSON update to a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd)
			if err != nil {
				return err
			}
			var p patient.Patch
			if err := readDocument(cmd, &p); err != nil {
				return err
			}
			r, err := c.Update(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), r)
		},
	}
	documentFlags(cmd)
	return cmd
}

func documentFlags(cmd *cobra.Command) {
	cmd.Flags().String("data", "", "JSON document")
	cmd.Flags().String("file", "", "Read the JSON document from a file, or - for stdin")
}

// readDocument decodes --data or --file strictly into dst.
func readDocument(cmd *cobra.Command, dst interface{}) error {
	data, _ := cmd.Flags().GetString("data")
	file, _ := cmd.Flags().GetString("file")

	var r io.Reader
	switch {
	case data != "" && file != "":
		return errors.New("use either --data or --file, not both")
	case data != "":
		r = strings.NewReader(data)
	case file == "-":
		r = cmd.InOrStdin()
	case file != "":
		fh, err := os.Open(file)
		if err != nil {
			return err
		}
		defer fh.Close()
		r = fh
	default:
		return errors.New("a JSON document is required: pass --data or --file")
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func newAPIClient(cmd *cobra.Command) (*client.Client, error) {
	api, _ := cmd.Flags().GetString("api")
	if api == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		api = cfg.APIURL
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.New(api, timeout)
}

// clinicLocation reads CLINIC_TIMEZONE the way the server does so that
// local date filters line up with the server's.
func clinicLocation() *time.Location {
	cfg, err := config.Load()
	if err != nil {
		return time.UTC
	}
	return cfg.Location()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
