package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-bot-protocol/internal/botclient"
	"github.com/tbourn/go-bot-protocol/internal/protocol"
	"github.com/tbourn/go-bot-protocol/internal/sysutil"
)

var (
	queryBaseURL string
	queryAPIKey  string
)

var queryCmd = &cobra.Command{
	Use:   "query <bot> <message>",
	Short: "Send one message to a remote bot and stream its reply to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		botName, message := args[0], args[1]

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		c := botclient.New(&logger)
		c.BaseURL = sysutil.FirstNonEmpty(queryBaseURL, cfg.BotClient.BaseURL)
		c.NumTries = cfg.BotClient.NumTries
		c.RetrySleep = cfg.BotClient.RetrySleep
		apiKey := sysutil.FirstNonEmpty(queryAPIKey, cfg.APIKey)

		req := protocol.NewQueryRequest([]protocol.ProtocolMessage{{
			Role:        protocol.RoleUser,
			Content:     message,
			ContentType: protocol.ContentTypeMarkdown,
			Timestamp:   time.Now().Unix(),
			MessageID:   uuid.NewString(),
		}})
		req.UserID = uuid.NewString()
		req.ConversationID = uuid.NewString()
		req.MessageID = uuid.NewString()

		sawText := false
		for ev := range c.StreamRequest(ctx, botName, apiKey, req) {
			if ev.Err != nil {
				if sawText {
					fmt.Println()
				}
				return ev.Err
			}
			resp := ev.Response
			if resp.Kind != protocol.KindPartial || resp.IsSuggestedReply {
				continue
			}
			if resp.IsReplaceResponse {
				fmt.Print("\n")
			}
			fmt.Print(resp.Text)
			sawText = true
		}
		if sawText {
			fmt.Println()
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryBaseURL, "base-url", "", "override the bot endpoint base URL")
	queryCmd.Flags().StringVar(&queryAPIKey, "api-key", "", "bearer token sent to the remote bot")
}
