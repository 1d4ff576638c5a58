package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"agrichain/cmd/internal/passphrase"
	"agrichain/crypto"
	"agrichain/gateway/middleware"
	"agrichain/native/escrow"
)

const (
	keygenCommand   = "keygen"
	tokenCommand    = "token"
	identityCommand = "identity"
	keyCommand      = "escrow-key"

	defaultPassEnv   = "AGRI_KEYSTORE_PASS"
	defaultSecretEnv = "AGRI_AUTH_HMAC_SECRET"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		usage(out)
		return errors.New("missing command")
	}
	switch args[0] {
	case keygenCommand:
		return runKeygen(args[1:], out)
	case tokenCommand:
		return runToken(args[1:], out, passphrase.NewSource(defaultSecretEnv, "gateway HMAC secret"))
	case identityCommand:
		return runIdentity(args[1:], out)
	case keyCommand:
		return runEscrowKey(args[1:], out)
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: agrictl <command> [flags]")
	fmt.Fprintln(out, "  keygen      -keystore PATH             generate a key and encrypt it to a keystore")
	fmt.Fprintln(out, "  identity    -keystore PATH             print the identity held by a keystore")
	fmt.Fprintln(out, "  token       -subject ID [-ttl 1h]      issue a gateway bearer token")
	fmt.Fprintln(out, "  escrow-key  -buyer ID -seller ID -details TEXT")
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "agri.keystore", "Output path for the keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := os.Stat(*keystorePath); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists (use -force to overwrite)", *keystorePath)
	}
	pass, err := passphrase.NewSource(*passEnv, "keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, pass); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	fmt.Fprintf(out, "identity: %s\nkeystore: %s\n", key.PubKey().Address().String(), *keystorePath)
	return nil
}

func runIdentity(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(identityCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", "agri.keystore", "Keystore file to read")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pass, err := passphrase.NewSource(*passEnv, "keystore passphrase").Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}
	fmt.Fprintln(out, key.PubKey().Address().String())
	return nil
}

type secretSource interface {
	Get() (string, error)
}

func runToken(args []string, out io.Writer, secret secretSource) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("subject", "", "Identity the token authenticates (agri1... or 0x hex)")
	issuer := fs.String("issuer", "agrichain", "Token issuer")
	audience := fs.String("audience", "escrowd", "Token audience")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	identity, err := crypto.ParseIdentity(*subject)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	if *ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	hmacSecret, err := secret.Get()
	if err != nil {
		return err
	}
	token, err := middleware.IssueToken(middleware.AuthConfig{
		HMACSecret: hmacSecret,
		Issuer:     *issuer,
		Audience:   *audience,
	}, identity, *ttl, time.Now())
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

func runEscrowKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keyCommand, flag.ContinueOnError)
	buyerFlag := fs.String("buyer", "", "Buyer identity")
	sellerFlag := fs.String("seller", "", "Seller identity")
	details := fs.String("details", "", "Order details text")
	if err := fs.Parse(args); err != nil {
		return err
	}
	buyer, err := crypto.ParseIdentity(*buyerFlag)
	if err != nil {
		return fmt.Errorf("buyer: %w", err)
	}
	seller, err := crypto.ParseIdentity(*sellerFlag)
	if err != nil {
		return fmt.Errorf("seller: %w", err)
	}
	key := escrow.DeriveKey(buyer, seller, *details)
	fmt.Fprintf(out, "key: %s\ncustody: %s\n", key.String(), crypto.FormatIdentity(escrow.Custody(key)))
	return nil
}
