// cardcopy writes raw images to removable memory cards and reads them back.
// It can find the card by itself, refuses to touch anything that looks like a
// fixed disk, unmounts whatever is mounted from the target before writing,
// and reports progress during the transfer.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"cardcopy/card"
	"cardcopy/retroxfer"
)

var version = "1.0.0"

type copyOptions struct {
	device     string
	sizeStr    string
	offsetStr  string
	maxSizeStr string
	numeric    bool
	quiet      bool
	readCard   bool
	writeCard  bool
	autoYes    bool
	retro      bool
	verbose    bool
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &copyOptions{}
	root := &cobra.Command{
		Use:     "cardcopy [flags] [path]",
		Short:   "Copy raw images to and from removable memory cards",
		Version: version,
		Long: `Copy a raw image to or from a removable memory card.

The [path] is the image to copy to or from the card. If it is unspecified
or '-', the image is read from stdin (write) or written to stdout (read).

Examples:

  Write sdcard.img to an automatically detected memory card:
    cardcopy sdcard.img

  Read the master boot record (512 bytes @ offset 0) from /dev/sdc:
    cardcopy --read --size 512 --offset 0 --device /dev/sdc mbr.img

Offset and size accept these suffixes:
` + card.SuffixTable(),
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runCopy(opts, path)
		},
	}

	root.Flags().StringVarP(&opts.device, "device", "d", "", "device file for the memory card")
	root.Flags().StringVarP(&opts.sizeStr, "size", "s", "", "amount to read/write")
	root.Flags().StringVarP(&opts.offsetStr, "offset", "o", "", "offset from the beginning of the memory card")
	root.Flags().BoolVarP(&opts.numeric, "numeric", "n", false, "report numeric progress, one percentage per line")
	root.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "no progress output")
	root.Flags().BoolVarP(&opts.readCard, "read", "r", false, "read from the memory card")
	root.Flags().BoolVarP(&opts.writeCard, "write", "w", false, "write to the memory card (default)")
	root.Flags().BoolVarP(&opts.autoYes, "yes", "y", false, "accept an automatically found memory card")
	root.Flags().BoolVar(&opts.retro, "retro", false, "fullscreen transfer view")
	root.PersistentFlags().StringVar(&opts.maxSizeStr, "max-card-size", "", "capacity ceiling for card detection (default 32GiB)")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "debug diagnostics on stderr")

	root.AddCommand(newDevicesCmd(opts))
	return root
}

func runCopy(opts *copyOptions, path string) error {
	log := newLogger(opts.verbose)

	if opts.quiet && opts.numeric {
		return errors.New("pick either --numeric or --quiet, but not both")
	}
	if opts.readCard && opts.writeCard {
		return errors.New("pick either --read or --write, but not both")
	}

	var total, offset, maxCard uint64
	var err error
	if opts.sizeStr != "" {
		if total, err = card.ParseSize(opts.sizeStr); err != nil {
			return fmt.Errorf("--size: %w", err)
		}
	}
	if opts.offsetStr != "" {
		if offset, err = card.ParseSize(opts.offsetStr); err != nil {
			return fmt.Errorf("--offset: %w", err)
		}
	}
	if opts.maxSizeStr != "" {
		if maxCard, err = card.ParseSize(opts.maxSizeStr); err != nil {
			return fmt.Errorf("--max-card-size: %w", err)
		}
	}

	if opts.readCard && total == 0 {
		return errors.New("specify the amount to copy (--size) when reading from the memory card")
	}

	device := opts.device
	if device == "" {
		if device, err = resolveDevice(opts, path, maxCard, log); err != nil {
			return err
		}
	}

	data, quiet, total, err := openDataPath(path, opts.readCard, opts.quiet, total)
	if err != nil {
		return err
	}
	if data != os.Stdin && data != os.Stdout {
		defer data.Close()
	}

	if opts.numeric && total == 0 {
		return errors.New("specify the input size (--size) to report numeric progress")
	}
	if opts.retro && (total == 0 || quiet || opts.numeric) {
		return errors.New("--retro needs a known size and regular progress output")
	}

	// Unmount everything backed by the card so reads and writes are not
	// affected by filesystem caches or other concurrent activity.
	guard := card.NewMountGuard()
	guard.Log = log
	if err := guard.UnmountAllUnder(device); err != nil {
		return err
	}

	devFlags := os.O_RDONLY
	if !opts.readCard {
		// O_SYNC bounds the data lost if the card is yanked mid-transfer.
		devFlags = os.O_WRONLY | unix.O_SYNC
	}
	dev, err := os.OpenFile(device, devFlags, 0)
	if err != nil {
		return err
	}
	defer dev.Close()

	if _, err := dev.Seek(int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", device, err)
	}

	rep, closeUI, err := newReporter(opts, quiet, total, device, offset)
	if err != nil {
		return err
	}
	if closeUI != nil {
		defer closeUI()
	}

	engine := &card.Engine{Log: log}
	if opts.readCard {
		_, err = engine.Copy(data, dev, total, rep)
	} else {
		_, err = engine.Copy(dev, data, total, rep)
	}
	return err
}

// openDataPath opens the image side of the transfer. "-" means the standard
// streams; reading to stdout forces quiet so progress does not stomp on the
// data. Writing to the card from a regular file caps the transfer length at
// the file size.
func openDataPath(path string, readCard, quiet bool, total uint64) (*os.File, bool, uint64, error) {
	if path == "-" {
		if readCard {
			return os.Stdout, true, total, nil
		}
		return os.Stdin, quiet, total, nil
	}

	if readCard {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, quiet, 0, err
		}
		return f, quiet, total, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, quiet, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, quiet, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return f, quiet, card.CapTotal(total, uint64(st.Size())), nil
}

// resolveDevice autodetects the memory card and gets the operator's blessing
// before anything touches it.
func resolveDevice(opts *copyOptions, path string, maxCard uint64, log logrus.FieldLogger) (string, error) {
	det := card.NewDetector()
	det.MaxCardSize = maxCard
	det.Log = log

	found, err := det.Find()
	if err != nil {
		var amb *card.AmbiguousError
		if errors.As(err, &amb) {
			fmt.Fprintln(os.Stderr, "Too many possible memory cards found:")
			for _, c := range amb.Candidates {
				fmt.Fprintf(os.Stderr, "  %s  (%s)\n", c.Path, card.PrettySize(c.Size))
			}
			fmt.Fprintln(os.Stderr, "Pick one and specify it explicitly with --device.")
			return "", errors.New("ambiguous memory card")
		}
		if errors.Is(err, card.ErrNoCard) && os.Getuid() != 0 {
			return "", errors.New("memory card couldn't be found automatically; try running as root or specify --device")
		}
		return "", err
	}

	if opts.autoYes {
		return found.Path, nil
	}
	if path == "-" {
		return "", fmt.Errorf("cannot confirm use of %s while streaming on stdin/stdout; rerun with --yes if the location is correct", found.Path)
	}

	fmt.Fprintf(os.Stderr, "Use %s memory card found at %s? [y/N] ", card.PrettySize(found.Size), found.Path)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return "", errors.New("aborted")
	}
	return found.Path, nil
}

// newReporter picks the progress surface for this run. The returned func, if
// any, tears the surface down and must run after the transfer.
func newReporter(opts *copyOptions, quiet bool, total uint64, device string, offset uint64) (card.ProgressReporter, func(), error) {
	switch {
	case quiet:
		return card.NopReporter{}, nil, nil
	case opts.retro:
		ui, err := retroxfer.NewUI()
		if err != nil {
			return nil, nil, fmt.Errorf("ui init: %w", err)
		}
		ui.SetTitle(fmt.Sprintf(" CARDCOPY – %s ", device))
		ui.SetSummary([]string{
			fmt.Sprintf("Device: %s   Amount: %s   Offset: %s", device, card.PrettySize(total), card.PrettySize(offset)),
		})
		ui.SetLegend("Legend:  █ transferred   ░ pending | Q to quit")
		return retroxfer.NewReporter(ui, total, card.CopyBufferSize), ui.Close, nil
	case opts.numeric:
		return card.NumericReporter{W: os.Stdout}, nil, nil
	default:
		return card.ConsoleReporter{W: os.Stdout}, nil, nil
	}
}

func newDevicesCmd(opts *copyOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List plausible memory cards (safe, read-only)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			det := card.NewDetector()
			det.Log = newLogger(opts.verbose)
			if opts.maxSizeStr != "" {
				max, err := card.ParseSize(opts.maxSizeStr)
				if err != nil {
					return fmt.Errorf("--max-card-size: %w", err)
				}
				det.MaxCardSize = max
			}

			candidates, err := det.List()
			if err != nil {
				return err
			}
			fmt.Println("This is a safe, read-only listing. Nothing will be written.")
			fmt.Println()
			fmt.Printf("  %-18s  %-10s\n", "Path", "Size")
			if len(candidates) == 0 {
				fmt.Println("  <none detected>")
			}
			for _, c := range candidates {
				fmt.Printf("  %-18s  %-10s\n", c.Path, card.PrettySize(c.Size))
			}
			if all {
				fmt.Println()
				fmt.Println("Skipped devices:")
				for _, path := range det.Enum.Paths() {
					_, reason := det.Probe(path)
					if reason == "" || reason == "not present" {
						continue
					}
					fmt.Printf("  %s  (%s)\n", path, reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also list devices that were probed and skipped")
	return cmd
}

func newLogger(verbose bool) logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}
