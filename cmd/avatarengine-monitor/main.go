// Command avatarengine-monitor wires a live or replayed event stream
// through the engine with the debug dashboard attached, for operators
// diagnosing a streaming session without a full client UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/avatarstream/avatarengine"
	"github.com/avatarstream/avatarengine/diagnostics"
	"github.com/avatarstream/avatarengine/internal/events"
	"github.com/avatarstream/avatarengine/monitor"
	"github.com/avatarstream/avatarengine/transport/wsevents"
)

func main() {
	urlFlag := flag.String("url", "", "websocket URL to connect to (mutually exclusive with -replay)")
	replayFlag := flag.String("replay", "", "path to a previously recorded session to replay instead of dialing")
	recordFlag := flag.String("record", "", "path to write a recording of a live session to")
	diagDBFlag := flag.String("diagnostics-db", "avatarengine-diagnostics.db", "SQLite file for the session event log")
	logFileFlag := flag.String("log-file", "avatarengine-monitor.log", "file to redirect diagnostic logging to, keeping the TUI clean")
	flag.Parse()

	if *urlFlag == "" && *replayFlag == "" {
		fmt.Fprintln(os.Stderr, "one of -url or -replay is required")
		os.Exit(1)
	}

	logFile, err := tea.LogToFile(*logFileFlag, "avatarengine-monitor")
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := log.New(logFile, "", log.Ltime|log.Lmicroseconds)

	sessionID := fmt.Sprintf("session-%d", os.Getpid())
	diagLog, err := diagnostics.Open(*diagDBFlag, sessionID)
	if err != nil {
		logger.Fatalf("open diagnostics log: %v", err)
	}
	defer diagLog.Close()

	monitorListener := monitor.NewListener()

	eng, err := avatarengine.New(
		avatarengine.WithLogger(logger),
		avatarengine.WithListener(monitorListener),
		avatarengine.WithDiagnostics(diagLog),
	)
	if err != nil {
		logger.Fatalf("construct engine: %v", err)
	}

	var src events.Source
	if *replayFlag != "" {
		replayer, err := wsevents.LoadReplayer(*replayFlag)
		if err != nil {
			logger.Fatalf("load replay %s: %v", *replayFlag, err)
		}
		src = replayer
	} else {
		var recorder *wsevents.Recorder
		if *recordFlag != "" {
			recorder, err = wsevents.NewRecorder(*recordFlag)
			if err != nil {
				logger.Fatalf("open recorder %s: %v", *recordFlag, err)
			}
		}
		opts := []wsevents.Option{wsevents.WithLogger(logger)}
		if recorder != nil {
			opts = append(opts, wsevents.WithRecorder(recorder))
		}
		wsSrc := wsevents.New(*urlFlag, opts...)
		if err := wsSrc.Dial(); err != nil {
			logger.Fatalf("dial %s: %v", *urlFlag, err)
		}
		defer wsSrc.Close()
		src = wsSrc
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(src)
	go eng.RunPullLoop(ctx, avatarengine.RenderSinkFunc(func(avatarengine.RenderFrame) {}))

	skipDrawSource := func() int {
		n, err := diagLog.SkipDrawCount()
		if err != nil {
			logger.Printf("read skip-draw count: %v", err)
			return 0
		}
		return n
	}
	model := monitor.New(monitorListener).WithSkipDrawSource(skipDrawSource)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		logger.Fatalf("monitor program exited: %v", err)
	}
}
