// Parley CLI - command line client for the parley chat server
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/parley-chat/parley/clients/go/parley"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PARLEY_URL")
	client := parley.NewClient(baseURL)
	client.SetToken(os.Getenv("PARLEY_TOKEN"))

	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "signup":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: parley signup <name> <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Signup(os.Args[2], os.Args[3], "", os.Args[4])
		exitOnError(err)
		fmt.Printf("Registered as %s\n", resp.User.ID)
		fmt.Printf("export PARLEY_TOKEN=%s\n", resp.AccessToken)

	case "login":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: parley login <email> <password>")
			os.Exit(1)
		}
		resp, err := client.Login(os.Args[2], os.Args[3])
		exitOnError(err)
		fmt.Printf("export PARLEY_TOKEN=%s\n", resp.AccessToken)

	case "users":
		users, err := client.ListUsers()
		exitOnError(err)
		for _, u := range users {
			fmt.Printf("  %s  %s <%s>\n", u.ID, u.Name, u.Email)
		}

	case "chats":
		chats, err := client.ListChats()
		exitOnError(err)
		for _, ch := range chats {
			last := ""
			if ch.LastMessage != nil {
				last = ch.LastMessage.Content
			}
			fmt.Printf("  %s  [%s] unread=%d  %s\n", ch.ID, ch.Type, ch.UnreadCount, last)
		}

	case "start":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: parley start <user-id>")
			os.Exit(1)
		}
		chat, err := client.CreateChat(os.Args[2])
		exitOnError(err)
		fmt.Printf("Chat: %s\n", chat.ID)

	case "read":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: parley read <chat-id>")
			os.Exit(1)
		}
		messages, err := client.GetMessages(os.Args[2], 20, 0)
		exitOnError(err)
		for i := len(messages) - 1; i >= 0; i-- {
			msg := messages[i]
			ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
			from := msg.SenderID
			if len(from) > 8 {
				from = from[:8]
			}
			fmt.Printf("[%s] %s: %s\n", ts, from, msg.Content)
		}

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: parley send <chat-id> <message>")
			os.Exit(1)
		}
		sock, err := client.Connect()
		exitOnError(err)
		defer sock.Close()
		exitOnError(sock.SendText(os.Args[2], os.Args[3]))
		waitFor(sock, "messageSent")

	case "watch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: parley watch <chat-id>")
			os.Exit(1)
		}
		sock, err := client.Connect()
		exitOnError(err)
		defer sock.Close()
		exitOnError(sock.JoinChat(os.Args[2]))
		for ev := range sock.Events() {
			fmt.Printf("%s %s\n", ev.Name, string(ev.Data))
		}

	default:
		usage()
		os.Exit(1)
	}
}

// waitFor drains events until the named one (or an error) arrives.
func waitFor(sock *parley.Socket, name string) {
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-sock.Events():
			if !ok {
				fmt.Fprintln(os.Stderr, "connection closed")
				os.Exit(1)
			}
			if ev.Name == name {
				fmt.Println(string(ev.Data))
				return
			}
			if ev.Name == "error" {
				fmt.Fprintln(os.Stderr, string(ev.Data))
				os.Exit(1)
			}
		case <-timeout:
			fmt.Fprintln(os.Stderr, "timed out waiting for server")
			os.Exit(1)
		}
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: parley <command> [args]

Commands:
  health                      Check server health
  signup <name> <email> <pw>  Register a new account
  login <email> <pw>          Log in and print a token export line
  users                       List other users
  chats                       List your conversations
  start <user-id>             Start a one-to-one chat
  read <chat-id>              Print recent messages
  send <chat-id> <message>    Send a text message
  watch <chat-id>             Stream live events for a chat

Environment:
  PARLEY_URL    Server base URL (default http://localhost:8080)
  PARLEY_TOKEN  Access token from signup/login`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
