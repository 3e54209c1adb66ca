// otpgate はメール・電話番号識別子とワンタイムパスコードによる
// パスワードレス認証サービス。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/otpgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
