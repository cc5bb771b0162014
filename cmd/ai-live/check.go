package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/igun997/ai-live/internal/audio"
	"github.com/igun997/ai-live/internal/conn"
	"github.com/igun997/ai-live/internal/ui"
)

var (
	checkDial    bool
	checkDevices bool
)

var errCheckFailed = errors.New("one or more checks failed")

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify audio tools, devices and the server endpoint",
	Long: `Check reports what ai-live needs before a conversation:
  • ffmpeg and the container it will encode utterances with
  • ffplay for replies the built-in decoder cannot play
  • the compiled-in microphone and speaker backends
  • the websocket endpoint derived from the server URL

With --dial the endpoint is connected to and closed again. With --devices the
microphone and speaker are opened briefly.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r := &report{w: cmd.OutOrStdout()}
		ctx := cmd.Context()

		r.section("Server")
		endpoint, err := conn.Endpoint(cfg.Server.URL, cfg.Server.Path)
		if err != nil {
			r.fail("endpoint", err.Error())
		} else {
			r.ok("endpoint", endpoint)
			if checkDial {
				checkEndpoint(ctx, r, endpoint, cfg.Server.DialTimeout)
			}
		}

		r.section("Encoding")
		enc := audio.NewFFmpegEncoder(cfg.Capture.FFmpeg)
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err = enc.Probe(probeCtx)
		cancel()
		if err != nil {
			r.fail("ffmpeg", err.Error())
		} else {
			r.ok("ffmpeg", enc.Path)
			encoding := audio.Negotiate(enc.Supports)
			if enc.Supports(encoding) {
				r.ok("encoding", string(encoding))
			} else {
				r.fail("encoding", "no webm, ogg or mp4 encoder available")
			}
		}

		r.section("Playback")
		if p := audio.NewFFplayPlayer(cfg.Playback.FFplay); p.Available() {
			r.ok("ffplay", p.Path)
		} else {
			r.warn("ffplay", "not found, undecodable replies will be skipped")
		}
		r.info("speaker backend", audio.OutputBackend)
		r.info("microphone backend", audio.MicrophoneBackend)

		if checkDevices {
			r.section("Devices")
			checkMicrophone(ctx, r, audio.Constraints{
				SampleRate:       cfg.Capture.SampleRate,
				Channels:         cfg.Capture.Channels,
				EchoCancellation: cfg.Capture.EchoCancellation,
				NoiseSuppression: cfg.Capture.NoiseSuppression,
			})
			checkSpeaker(r, audio.Format{SampleRate: cfg.Playback.SampleRate, Channels: cfg.Playback.Channels})
		}

		fmt.Fprintln(r.w)
		if r.failed {
			fmt.Fprintln(r.w, ui.CheckFailStyle.Render("Some checks failed."))
			return errCheckFailed
		}
		fmt.Fprintln(r.w, ui.CheckOKStyle.Render("Ready."))
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDial, "dial", false, "Connect to the websocket endpoint")
	checkCmd.Flags().BoolVar(&checkDevices, "devices", false, "Open the microphone and speaker")
	rootCmd.AddCommand(checkCmd)
}

func checkEndpoint(ctx context.Context, r *report, endpoint string, timeout time.Duration) {
	c, err := conn.Dial(ctx, conn.Config{URL: endpoint, DialTimeout: timeout})
	if err != nil {
		r.fail("dial", err.Error())
		return
	}
	_ = c.Close()
	r.ok("dial", "connected")
}

func checkMicrophone(ctx context.Context, r *report, c audio.Constraints) {
	stream, err := audio.NewMicrophone().Open(ctx, c)
	if err != nil {
		r.fail("microphone", err.Error())
		return
	}
	defer stream.Close()
	if _, err := stream.Read(ctx); err != nil {
		r.fail("microphone", err.Error())
		return
	}
	r.ok("microphone", fmt.Sprintf("%d Hz, %d channel(s)", c.SampleRate, c.Channels))
}

func checkSpeaker(r *report, f audio.Format) {
	out, err := audio.NewOutput(f)
	if err != nil {
		r.warn("speaker", err.Error())
		return
	}
	_ = out.Close()
	r.ok("speaker", fmt.Sprintf("%d Hz, %d channel(s)", f.SampleRate, f.Channels))
}

// report prints one styled line per check.
type report struct {
	w      io.Writer
	failed bool
}

func (r *report) section(title string) {
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, ui.SummaryTitleStyle.Render(title))
}

func (r *report) ok(name, detail string) {
	fmt.Fprintf(r.w, "  %s %-20s %s\n", ui.CheckOKStyle.Render("ok  "), name, ui.DimStyle.Render(detail))
}

func (r *report) warn(name, detail string) {
	fmt.Fprintf(r.w, "  %s %-20s %s\n", ui.NoticeStyle.Render("warn"), name, detail)
}

func (r *report) info(name, detail string) {
	fmt.Fprintf(r.w, "  %s %-20s %s\n", ui.DimStyle.Render("-   "), name, detail)
}

func (r *report) fail(name, detail string) {
	r.failed = true
	fmt.Fprintf(r.w, "  %s %-20s %s\n", ui.CheckFailStyle.Render("fail"), name, ui.ErrorTextStyle.Render(detail))
}
