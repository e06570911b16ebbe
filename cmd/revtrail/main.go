// Command revtrail 查看与维护修订历史
package main

import (
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
