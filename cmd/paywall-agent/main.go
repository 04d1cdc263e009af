// Command paywall-agent is an autonomous reader for the paywall API:
// it discovers articles, pays for them and reads them as an AI agent.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

const sessionCookie = "paywall_session"

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	Wallet      string    `json:"wallet"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type receipt struct {
	ArticleID int64     `json:"article_id"`
	Title     string    `json:"title"`
	Amount    string    `json:"amount"`
	TxHash    string    `json:"tx_hash"`
	At        time.Time `json:"at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "paywall-agent")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "paywall-agent")
}

func tokenPath() string    { return filepath.Join(cfgDir(), "token.json") }
func receiptsPath() string { return filepath.Join(cfgDir(), "receipts.json") }

func writeJSONFile(path string, v any) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func saveToken(tok, wallet string, exp time.Time) error {
	return writeJSONFile(tokenPath(), tokenFile{AccessToken: tok, Wallet: wallet, ExpiresAt: exp})
}

// loadToken returns the stored session for wallet, if any is still valid.
func loadToken(wallet string) (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	if !strings.EqualFold(tf.Wallet, wallet) {
		return "", errors.New("stored token belongs to another wallet")
	}
	return tf.AccessToken, nil
}

// tokenExpiry reads exp from an unverified JWT; the server is the one checking it.
func tokenExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	_, _, _ = jwt.NewParser().ParseUnverified(tok, &claims)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(time.Hour)
}

func loadReceipts() ([]receipt, error) {
	b, err := os.ReadFile(receiptsPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []receipt
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func appendReceipt(r receipt) error {
	list, err := loadReceipts()
	if err != nil {
		return err
	}
	return writeJSONFile(receiptsPath(), append(list, r))
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func defaultAgentID() string {
	v, _ := u.NewV4()
	return "Agent_" + strings.ToUpper(v.String()[:6])
}

// signIn connects the key wallet, then runs nonce -> personal_sign -> verify.
func signIn(ctx context.Context, c *client, keyHex string) (string, error) {
	w, err := newKeySigner(keyHex, c)
	if err != nil {
		return "", err
	}
	if _, err := w.Connect(ctx); err != nil {
		return "", fmt.Errorf("connect wallet: %w", err)
	}
	msg, err := c.nonce(ctx)
	if err != nil {
		return "", err
	}
	sig, err := w.signPersonal(msg)
	if err != nil {
		return "", err
	}
	return c.verify(ctx, msg, sig)
}

func usage() {
	fmt.Fprintf(os.Stderr, `paywall-agent
Usage:
  paywall-agent -base URL -wallet 0x... [-agent ID] <cmd> [args]

Commands:
  version
  discover                                list the catalogue
  read       -id <article>                read one article (prints the 402 challenge if locked)
  buy        -id <article>                pay for one article as an agent
  run        [-max-price 2.00]            discover, pay for the first affordable article, read it
  login      -key <hex>                   sign in with a wallet key (saves token)
  receipts                                list local purchase receipts
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the paywall API.
func main() {
	// global flags
	base := flag.String("base", "http://localhost:5000", "paywall API base URL")
	agent := flag.String("agent", "", "agent id (random when empty)")
	walletAddr := flag.String("wallet", os.Getenv("PAYWALL_AGENT_WALLET"), "agent wallet address")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if *agent == "" {
		*agent = defaultAgentID()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	token, _ := loadToken(*walletAddr)
	c := newClient(*base, *agent, *walletAddr, token)

	switch cmd {

	case "version":
		fmt.Printf("paywall-agent %s (%s)\n", version, buildDate)

	case "discover":
		cat, err := c.discover(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(cat)

	case "read":
		fs := flag.NewFlagSet("read", flag.ExitOnError)
		id := fs.Int64("id", 0, "article id")
		_ = fs.Parse(flag.Args()[1:])
		if *id <= 0 {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		art, ch, err := c.read(ctx, *id)
		if errors.Is(err, errPaymentRequired) {
			printJSON(ch)
			os.Exit(3)
		}
		if err != nil {
			fail(err)
		}
		printJSON(art)

	case "buy":
		fs := flag.NewFlagSet("buy", flag.ExitOnError)
		id := fs.Int64("id", 0, "article id")
		purpose := fs.String("purpose", "", "purpose recorded as agent metadata")
		_ = fs.Parse(flag.Args()[1:])
		if *id <= 0 || *walletAddr == "" {
			fmt.Fprintln(os.Stderr, "need -id and -wallet")
			os.Exit(1)
		}
		p, err := c.purchase(ctx, *id, metadata(*purpose))
		if err != nil {
			fail(err)
		}
		if p.Content != nil {
			_ = appendReceipt(receipt{ArticleID: *id, Title: p.Content.Title, Amount: p.Payment.Amount, TxHash: p.Payment.TxHash, At: time.Now().UTC()})
		}
		printJSON(p)

	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		maxPrice := fs.String("max-price", "0", "highest price to pay, 0 for any")
		purpose := fs.String("purpose", "research", "purpose recorded as agent metadata")
		_ = fs.Parse(flag.Args()[1:])
		if *walletAddr == "" {
			fmt.Fprintln(os.Stderr, "need -wallet")
			os.Exit(1)
		}
		budget, err := decimal.NewFromString(*maxPrice)
		if err != nil {
			fail(fmt.Errorf("max-price: %w", err))
		}
		res, err := c.run(ctx, budget, metadata(*purpose))
		if err != nil {
			fail(err)
		}
		if p := res.Purchase; p != nil {
			_ = appendReceipt(receipt{ArticleID: res.Article.ID, Title: res.Article.Title, Amount: p.Payment.Amount, TxHash: p.Payment.TxHash, At: time.Now().UTC()})
		}
		printJSON(res)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		key := fs.String("key", os.Getenv("PAYWALL_AGENT_KEY"), "hex private key")
		_ = fs.Parse(flag.Args()[1:])
		if *key == "" {
			fmt.Fprintln(os.Stderr, "need -key")
			os.Exit(1)
		}
		tok, err := signIn(ctx, c, *key)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tok, c.wallet, tokenExpiry(tok)); err != nil {
			fail(err)
		}
		fmt.Println(c.wallet)

	case "receipts":
		list, err := loadReceipts()
		if err != nil {
			fail(err)
		}
		printJSON(list)

	default:
		usage()
	}
}

func metadata(purpose string) map[string]any {
	if purpose == "" {
		return nil
	}
	return map[string]any{"purpose": purpose, "client": "paywall-agent"}
}
