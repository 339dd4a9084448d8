package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"Go_Drop/internal/client"
	"Go_Drop/internal/log"
)

var (
	profileName string
	source      string
	parallel    bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload files, chunked above the direct upload threshold",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&profileName, "profile", "desktop", "chunk profile: desktop or mobile")
	uploadCmd.Flags().StringVar(&source, "source", "user", "source tag: user, chat, drive or gallery")
	uploadCmd.Flags().BoolVar(&parallel, "parallel", false, "upload all files at once")
}

func runUpload(cmd *cobra.Command, args []string) error {
	if token == "" {
		return fmt.Errorf("no token, pass --token or set PUSHFILE_TOKEN")
	}
	profile, err := client.ProfileByName(profileName)
	if err != nil {
		return err
	}

	files := make([]client.File, 0, len(args))
	for _, path := range args {
		f, fh, err := client.OpenFile(path)
		if err != nil {
			return err
		}
		defer fh.Close()
		files = append(files, f)
	}

	api := client.NewHTTPClient(serverURL, token).SetTimeout(10 * time.Minute)
	mode := client.ModeSequential
	if parallel {
		mode = client.ModeParallel
	}
	batch := client.NewBatch(client.NewTransport(api, profile, source), mode, files)
	out := cmd.OutOrStdout()
	batch.OnChange = func(i int, s client.ItemState) {
		switch s.Status {
		case client.StatusUploading:
			fmt.Fprintf(out, "%s: %5.1f%% %s/s\n", s.Name, s.Progress.Percent, humanBytes(s.Progress.BytesPerSecond))
		case client.StatusError:
			log.Debugf("%s failed: %v", s.Name, s.Err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failed := 0
	for _, s := range batch.Run(ctx) {
		switch s.Status {
		case client.StatusSuccess:
			if s.File != nil {
				fmt.Fprintf(out, "%s: stored as %s (%d bytes)\n", s.Name, s.File.Filename, s.File.Size)
			}
		case client.StatusCancelled:
			fmt.Fprintf(out, "%s: cancelled\n", s.Name)
			failed++
		default:
			fmt.Fprintf(out, "%s: %v\n", s.Name, s.Err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files not uploaded", failed, len(files))
	}
	return nil
}

func humanBytes(n float64) string {
	units := []string{"B", "KiB", "MiB", "GiB"}
	i := 0
	for n >= 1024 && i < len(units)-1 {
		n /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", n, units[i])
}
