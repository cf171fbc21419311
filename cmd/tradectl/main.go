package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/pkg/negotiation"
	"tradelane/pkg/signature"
)

const usage = `usage:
  tradectl issue   --party <name> --seed <seed> --counterparty <name> [trade flags]
  tradectl counter --party <name> --seed <seed> --linear-id <uuid> [--sell-value N] [--sell-currency C] [--buy-value N] [--buy-currency C]
  tradectl settle  --party <name> --seed <seed> --linear-id <uuid> [--amount N] [--fees N] [--units N]
  tradectl get     --linear-id <uuid>

environment:
  NOTARY_URL          notary base url (default http://localhost:8090)
  PARTY_SEEDS         "party=seed,..." directory of known party keys
  PARTY_ENDPOINTS     "party=url,..." counterparty proposal endpoints`

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	switch os.Args[1] {
	case "issue":
		runIssue(os.Args[2:])
	case "counter":
		runNegotiation(os.Args[2:], domain.ActionCounterTrade)
	case "settle":
		runNegotiation(os.Args[2:], domain.ActionSettleTrade)
	case "get":
		runGet(os.Args[2:])
	default:
		fail(usage)
	}
}

func notaryURL() string {
	if u := os.Getenv("NOTARY_URL"); u != "" {
		return u
	}
	return "http://localhost:8090"
}

func runIssue(args []string) {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	party := fs.String("party", "", "issuing party name")
	counterparty := fs.String("counterparty", "", "counterparty name")
	regulator := fs.String("regulator", "Regulator", "regulator name")
	sellValue := fs.Int64("sell-value", 0, "sell amount")
	sellCurrency := fs.String("sell-currency", "USD", "sell currency code")
	buyValue := fs.Int64("buy-value", 0, "buy amount")
	buyCurrency := fs.String("buy-currency", "EUR", "buy currency code")
	userID := fs.String("user", "", "user identifier")
	assetCode := fs.String("asset", "", "asset code")
	orderType := fs.String("order-type", "LIMIT", "order type")
	_ = fs.Parse(args)
	if *party == "" || *counterparty == "" {
		fail("issue: --party and --counterparty are required")
	}

	rec := domain.TradeRecord{
		Kind:            domain.KindTrade,
		SellValue:       *sellValue,
		SellCurrency:    *sellCurrency,
		BuyValue:        *buyValue,
		BuyCurrency:     *buyCurrency,
		InitiatingParty: domain.Party(*party),
		CounterParty:    domain.Party(*counterparty),
		Regulator:       domain.Party(*regulator),
		Status:          domain.StatusPending,
		UserID:          *userID,
		AssetCode:       *assetCode,
		OrderType:       *orderType,
	}
	body, _ := json.Marshal(rec)
	resp, err := http.Post(notaryURL()+"/notary/records", "application/json", strings.NewReader(string(body)))
	if err != nil {
		fail("issue: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		failStatus("issue", resp)
	}
	var issued domain.TradeRecord
	_ = json.NewDecoder(resp.Body).Decode(&issued)
	printJSON(map[string]any{"result": "ISSUED", "linear_id": issued.LinearID, "record_id": issued.RecordID})
}

func runNegotiation(args []string, action domain.ActionTag) {
	fs := flag.NewFlagSet(string(action), flag.ExitOnError)
	party := fs.String("party", "", "initiating party name")
	seed := fs.String("seed", "", "initiating party key seed")
	linearRaw := fs.String("linear-id", "", "logical trade identifier")
	sellValue := fs.Int64("sell-value", -1, "new sell amount")
	sellCurrency := fs.String("sell-currency", "", "new sell currency")
	buyValue := fs.Int64("buy-value", -1, "new buy amount")
	buyCurrency := fs.String("buy-currency", "", "new buy currency")
	amount := fs.Int64("amount", -1, "settlement transaction amount")
	fees := fs.Int64("fees", -1, "settlement transaction fees")
	units := fs.Int64("units", -1, "settlement transaction units")
	timeout := fs.Duration("timeout", time.Minute, "negotiation timeout")
	_ = fs.Parse(args)
	if *party == "" || *seed == "" || *linearRaw == "" {
		fail(string(action) + ": --party, --seed and --linear-id are required")
	}
	linearID, err := uuid.Parse(*linearRaw)
	if err != nil {
		fail("invalid --linear-id: " + err.Error())
	}

	proposal := negotiation.Proposal{Action: action}
	setIf := func(dst **int64, v *int64) {
		if *v >= 0 {
			*dst = v
		}
	}
	setIf(&proposal.SellValue, sellValue)
	setIf(&proposal.BuyValue, buyValue)
	setIf(&proposal.TransactionAmount, amount)
	setIf(&proposal.TransactionFees, fees)
	setIf(&proposal.TransactionUnits, units)
	if *sellCurrency != "" {
		proposal.SellCurrency = sellCurrency
	}
	if *buyCurrency != "" {
		proposal.BuyCurrency = buyCurrency
	}

	signer := signature.NewSeedSigner(*party, *seed)
	keys := signature.ParseSeedRing(os.Getenv("PARTY_SEEDS"))
	keys[*party] = signer.Public()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	client := &negotiation.Client{BaseURL: notaryURL()}
	pctx := negotiation.PartyContext{
		Identity: domain.Party(*party),
		Signer:   signer,
		Keys:     keys,
		Ledger:   client,
		Notary:   client,
		Dialer:   &negotiation.HTTPDialer{Endpoints: parseEndpoints(os.Getenv("PARTY_ENDPOINTS"))},
		Logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	outcome, err := negotiation.NewFlow(pctx, linearID, proposal).Run(ctx)
	out := map[string]any{"state": outcome.State}
	if err != nil {
		out["error"] = err.Error()
	}
	if outcome.State == negotiation.StateCommitted {
		out["record"] = outcome.Record
		out["transition_id"] = outcome.TransitionID
	}
	printJSON(out)
	if outcome.State != negotiation.StateCommitted {
		os.Exit(1)
	}
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	linearRaw := fs.String("linear-id", "", "logical trade identifier")
	_ = fs.Parse(args)
	linearID, err := uuid.Parse(*linearRaw)
	if err != nil {
		fail("invalid --linear-id: " + err.Error())
	}
	client := &negotiation.Client{BaseURL: notaryURL()}
	rec, err := client.FindUnconsumed(context.Background(), linearID, "")
	if err != nil {
		fail("get: " + err.Error())
	}
	printJSON(rec)
}

func parseEndpoints(spec string) map[domain.Party]string {
	out := map[domain.Party]string{}
	for _, pair := range strings.Split(spec, ",") {
		name, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || url == "" {
			continue
		}
		out[domain.Party(name)] = url
	}
	return out
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

func failStatus(cmd string, resp *http.Response) {
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	fail(fmt.Sprintf("%s: notary returned %d: %v", cmd, resp.StatusCode, body))
}
