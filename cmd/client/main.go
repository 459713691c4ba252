// Command client walks a task through submission, review and the
// leaderboard against a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/gurkanbulca/collabdesk/internal/grpcapi"
	"github.com/gurkanbulca/collabdesk/internal/models"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	taskID := flag.String("task", "", "id of a task assigned to -user")
	userID := flag.String("user", "u1", "collaborator id")
	reviewerID := flag.String("reviewer", "r1", "reviewer id")
	link := flag.String("link", "https://example.com/deliverable", "link to submit")
	rating := flag.Float64("rating", 4.5, "rating given on approval")
	flag.Parse()

	if *taskID == "" {
		log.Fatal("-task is required")
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collaborator := grpcapi.WithActor(ctx, models.Actor{UID: *userID, Role: models.RoleCollaborator})
	reviewer := grpcapi.WithActor(ctx, models.Actor{UID: *reviewerID, Role: models.RoleReviewer})

	task, err := client.GetTask(collaborator, *taskID)
	if err != nil {
		fatal("get task", err)
	}
	fmt.Printf("Task %s: %q is %s\n", task.ID, task.Title, task.Status)

	sub, err := client.SubmitDeliverable(collaborator, grpcapi.SubmitDeliverableRequest{
		TaskID: *taskID,
		Type:   string(models.SubmissionTypeLink),
		Link:   *link,
		Notes:  "submitted from the smoke client",
	})
	if err != nil {
		fatal("submit", err)
	}
	fmt.Printf("Submission %s stored at %s\n", sub.ID, sub.SubmittedAt.Format(time.RFC3339))

	reviewed, err := client.ReviewTask(reviewer, grpcapi.ReviewTaskRequest{
		TaskID:   *taskID,
		Decision: "approve",
		Comment:  "approved from the smoke client",
		Rating:   rating,
	})
	if err != nil {
		fatal("review", err)
	}
	fmt.Printf("Task %s is now %s (%s)\n", reviewed.ID, reviewed.Status, reviewed.ReviewStatus)

	board, err := client.GetLeaderboard(collaborator, grpcapi.GetLeaderboardRequest{Window: "weekly", UserID: *userID})
	if err != nil {
		fatal("leaderboard", err)
	}
	fmt.Printf("Weekly leaderboard (%d entries):\n", len(board.Entries))
	for _, e := range board.Entries {
		fmt.Printf("  #%d %-20s %3d pts  %d tasks\n", e.Rank, e.DisplayName, e.Points, e.CompletedTaskCount)
	}
	if len(board.UserRanks) > 0 {
		fmt.Printf("Ranks of %s: %v\n", *userID, board.UserRanks)
	}
}

func fatal(step string, err error) {
	if st, ok := status.FromError(err); ok {
		log.Fatalf("%s failed: %s: %s", step, st.Code(), st.Message())
	}
	log.Fatalf("%s failed: %v", step, err)
}
