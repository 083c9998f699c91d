package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/blockedby/tgcrawler/internal/api"
	"github.com/blockedby/tgcrawler/internal/config"
	"github.com/blockedby/tgcrawler/internal/repository"
)

// tg-code submits a received login code onto a phone record. The crawler's
// authorization loop polls the backend for the code, so this is the whole
// operator side of the login handshake.
func main() {
	fmt.Println("=== telegram login code tool ===")
	fmt.Println()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("failed to load config:", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	ctx := context.Background()

	backend := api.New(cfg.APIBaseURL)
	phonesRepo := repository.NewPhonesRepository(repository.NewStore(backend))

	number := argOrAsk(reader, 1, "phone number (e.g. +15551234567): ")
	phone, err := phonesRepo.FindByNumber(ctx, number)
	if err != nil {
		fmt.Println("lookup failed:", err)
		os.Exit(1)
	}
	if phone == nil {
		fmt.Println("no phone record for", number)
		os.Exit(1)
	}

	fmt.Printf("found phone %s, status %s\n", phone.Number, phone.Status)

	code := argOrAsk(reader, 2, "login code: ")
	if code == "" {
		fmt.Println("empty code, nothing to do")
		os.Exit(1)
	}

	phone.Code = &code
	if err := phonesRepo.Save(ctx, phone); err != nil {
		fmt.Println("save failed:", err)
		os.Exit(1)
	}

	fmt.Println("code saved, the crawler will pick it up on its next poll")
}

// argOrAsk reads the n-th positional argument, falling back to an
// interactive prompt.
func argOrAsk(reader *bufio.Reader, n int, prompt string) string {
	if len(os.Args) > n {
		return strings.TrimSpace(os.Args[n])
	}
	fmt.Print(prompt)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
