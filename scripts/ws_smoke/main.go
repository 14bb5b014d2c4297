package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	nick := flag.String("nick", "tester", "nick to register with")
	channel := flag.String("channel", "#general", "channel to join")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(line string) error {
		if err := conn.Write(ctx, websocket.MessageText, []byte(line)); err != nil {
			return fmt.Errorf("send %q: %w", line, err)
		}
		return nil
	}

	for _, line := range []string{
		"NICK " + *nick,
		"USER " + *nick + " 0 * :" + *nick,
		"JOIN " + *channel,
	} {
		if err := send(line); err != nil {
			return err
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		line := string(data)
		fmt.Println("<-", line)

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[1] {
		case "366":
			// end of NAMES: the join is complete
			if err := send("PRIVMSG " + *channel + " :" + *text); err != nil {
				return err
			}
			return send("QUIT :smoke test done")
		case "471", "473", "475":
			return fmt.Errorf("join refused: %s", line)
		}
	}
}
