// Command chat is a terminal client for the novel question-answering
// server. Conversation history lives here, on the client, and is sent with
// every request; the server stays stateless.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"novelrag/types"
)

var (
	serverURL = flag.String("server", "http://localhost:3000", "novelrag server base URL")
	book      = flag.String("book", "", "restrict retrieval to one book id")
	timeout   = flag.Duration("timeout", 2*time.Minute, "per-request timeout")
)

func main() {
	flag.Parse()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Println(boldGreen("📚 四大名著问答"))
	fmt.Printf("Server: %s\n", boldCyan(*serverURL))
	if *book != "" {
		fmt.Printf("Book filter: %s\n", boldCyan(*book))
	}
	fmt.Println("Type your question and press Enter. Type 'exit' or press Ctrl+C to quit.")
	fmt.Println()

	client := &http.Client{Timeout: *timeout}
	var history []types.ConversationTurn

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("你: "))
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "exit") {
			break
		}

		resp, err := ask(client, *serverURL, query, *book, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Print(boldCyan("助手: "))
		fmt.Println(resp.Answer)
		if len(resp.Sources) > 0 {
			books := make(map[string]int)
			for _, s := range resp.Sources {
				books[s.BookID]++
			}
			var parts []string
			for b, n := range books {
				parts = append(parts, fmt.Sprintf("%s ×%d", b, n))
			}
			fmt.Println(faint("出处: " + strings.Join(parts, ", ")))
		} else {
			fmt.Println(faint("（没有找到相关段落）"))
		}
		fmt.Println()

		history = append(history,
			types.ConversationTurn{Role: types.RoleUser, Content: query},
			types.ConversationTurn{Role: types.RoleAssistant, Content: resp.Answer},
		)
	}
}

func ask(client *http.Client, baseURL, query, book string, history []types.ConversationTurn) (*types.ChatResponse, error) {
	body, err := json.Marshal(types.QueryParams{
		Query:   query,
		History: history,
		Book:    book,
	})
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(baseURL+"/api/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var out types.ChatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
