// createkey generates a random API key for the engine. The server reads the
// key from the API_KEY environment variable, so this tool only prints it.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	// Character set: uppercase letters, lowercase letters, and numbers.
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const keyLength = 32

	charsetLen := len(charset)
	// Rejection sampling threshold: the largest multiple of charsetLen that
	// fits in a byte, so every character is equally likely.
	maxValidByte := byte((255 / charsetLen) * charsetLen)

	apiKeyBytes := make([]byte, keyLength)
	randomByte := make([]byte, 1)

	for i := range apiKeyBytes {
		for {
			if _, err := rand.Read(randomByte); err != nil {
				slog.Error("Failed to generate random API key", "error", err)
				os.Exit(1)
			}

			if randomByte[0] < maxValidByte {
				apiKeyBytes[i] = charset[int(randomByte[0])%charsetLen]
				break
			}
		}
	}

	apiKey := string(apiKeyBytes)

	fmt.Println("API key generated. Export it before starting the server:")
	fmt.Println()
	fmt.Printf("export API_KEY=%s\n", apiKey)
	fmt.Println()
	fmt.Println("Example curl commands:")
	fmt.Println()
	fmt.Printf("# Submit a document\n")
	fmt.Printf("curl -X POST -H \"Authorization: Bearer %s\" -H \"Content-Type: application/json\" \\\n", apiKey)
	fmt.Printf("  -d '{\"id\":\"doc-1\",\"text\":\"Quarterly invoice for acme\",\"metadata\":{\"page\":1}}' \\\n")
	fmt.Printf("  http://localhost:8080/v1/collections/docs/documents\n")
	fmt.Println()
	fmt.Printf("# Search\n")
	fmt.Printf("curl -X POST -H \"Authorization: Bearer %s\" -H \"Content-Type: application/json\" \\\n", apiKey)
	fmt.Printf("  -d '{\"query\":\"invoice layout\",\"topN\":5}' \\\n")
	fmt.Printf("  http://localhost:8080/v1/search\n")
}
