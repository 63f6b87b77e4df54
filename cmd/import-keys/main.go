package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/betbot/volbot/internal/wallet"
	"github.com/betbot/volbot/pkg/secretstore"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

var walletKeyRe = regexp.MustCompile(`^WALLET(\d+)_PRIVATE_KEY$`)

// 把 .env 里的 WALLET{n}_PRIVATE_KEY 导入加密密钥库，运行时用 WALLET_STORE_PATH 读取
func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("store", getenv("WALLET_STORE_PATH", "data/wallets.badger"), "badger key store path")
		secretKey = flag.String("secret-key", getenv("WALLET_STORE_KEY", ""), "store encryption key (32 bytes, hex or base64)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(errors.New("secret key is required: set WALLET_STORE_KEY or pass -secret-key"))
	}

	env, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(errors.Wrapf(err, "read %s", *inPath))
	}
	keys := walletKeys(env)
	if len(keys) == 0 {
		fatal(errors.Errorf("no WALLET{n}_PRIVATE_KEY entries in %s", *inPath))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath, EncryptionKey: keyBytes})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	n, err := wallet.ImportKeys(ss, keys)
	if err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "已导入 %d 个私钥到 %s\n", n, *dbPath)
}

// walletKeys 按编号排序返回私钥
func walletKeys(env map[string]string) []string {
	type indexed struct {
		n   int
		key string
	}
	var found []indexed
	for k, v := range env {
		m := walletKeyRe.FindStringSubmatch(k)
		if m == nil || strings.TrimSpace(v) == "" {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		found = append(found, indexed{n: n, key: v})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.key
	}
	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
