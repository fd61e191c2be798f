// Command pgledger tracks schema migrations for a PostgreSQL database and
// detects drift between the live schema and the recorded baseline.
package main

import "github.com/aqasim81/pgledger/internal/cli"

func main() {
	cli.Execute()
}
