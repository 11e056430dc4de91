// Command client is a line-oriented test client for a roomsync server.
// It connects to a room, prints every poke it receives, and turns stdin
// lines like "put key value" and "del key" into mutations.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iudanet/roomsync/pkg/api"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "ws://localhost:8080", "Server URL")
	roomID := flag.String("room", "demo", "Room to join")
	clientID := flag.String("client", "", "Client id (random UUID if empty)")
	token := flag.String("token", "", "Connection token")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *clientID == "" {
		*clientID = uuid.NewString()
	}

	if err := run(*serverURL, *roomID, *clientID, *token); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(serverURL, roomID, clientID, token string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	u.Path = "/sync/" + roomID
	q := u.Query()
	q.Set("clientID", clientID)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	fmt.Printf("connected to %s as %s\n", roomID, clientID)

	go readLoop(conn)

	nextID := int64(1)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		mutation, ok := parseLine(scanner.Text(), nextID)
		if !ok {
			fmt.Println("usage: put <key> <json-value> | del <key>")
			continue
		}
		nextID++

		msg := api.Message{
			Type: api.TypePush,
			Push: &api.PushRequest{Mutations: []api.Mutation{mutation}},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to send: %w", err)
		}
	}
	return scanner.Err()
}

func parseLine(line string, id int64) (api.Mutation, bool) {
	fields := strings.Fields(line)
	switch {
	case len(fields) >= 3 && fields[0] == "put":
		value := strings.Join(fields[2:], " ")
		if !json.Valid([]byte(value)) {
			// bare words are a convenience for strings
			value = fmt.Sprintf("%q", value)
		}
		args, _ := json.Marshal(map[string]json.RawMessage{
			"key":   json.RawMessage(fmt.Sprintf("%q", fields[1])),
			"value": json.RawMessage(value),
		})
		return api.Mutation{ID: id, Name: "put", Args: args}, true
	case len(fields) == 2 && fields[0] == "del":
		args, _ := json.Marshal(map[string]string{"key": fields[1]})
		return api.Mutation{ID: id, Name: "del", Args: args}, true
	default:
		return api.Mutation{}, false
	}
}

func readLoop(conn *websocket.Conn) {
	for {
		var msg api.Message
		if err := conn.ReadJSON(&msg); err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			os.Exit(1)
		}

		switch msg.Type {
		case api.TypePoke:
			printPoke(msg.Poke)
		case api.TypeError:
			fmt.Printf("server error: %s\n", msg.Error)
		default:
			fmt.Printf("unexpected message type: %s\n", msg.Type)
		}
	}
}

func printPoke(poke *api.Poke) {
	if poke == nil {
		return
	}
	base := "null"
	if poke.BaseCookie != nil {
		base = fmt.Sprint(*poke.BaseCookie)
	}
	fmt.Printf("poke base=%s cookie=%d lastMutationID=%d at %s\n",
		base, poke.Cookie, poke.LastMutationID, time.Now().Format(time.TimeOnly))
	for _, op := range poke.Patch {
		if op.Op == api.OpDel {
			fmt.Printf("  del %s\n", op.Key)
			continue
		}
		fmt.Printf("  put %s = %s\n", op.Key, string(op.Value))
	}
}

func printVersion() {
	fmt.Printf("roomsync client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
