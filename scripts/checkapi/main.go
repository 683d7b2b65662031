package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"qr-attendance-bot/internal/models"
	"qr-attendance-bot/internal/repository"
)

const defaultBackendURL = "http://192.168.0.103:8080"

func main() {
	fmt.Println("🚀 Attendance Backend Check")
	fmt.Println("=====================================")

	// Load .env file if exists
	godotenv.Load()

	url := getEnv("API_BASE_URL", defaultBackendURL)
	email := getEnv("CHECK_EMAIL", "")
	password := getEnv("CHECK_PASSWORD", "")

	fmt.Printf("Connecting to: %s\n", url)
	if err := checkReachable(url); err != nil {
		fmt.Printf("❌ Cannot reach the backend: %v\n", err)
		fmt.Println("\nPlease check:")
		fmt.Println("1. Is the backend running at API_BASE_URL?")
		fmt.Println("2. Is this machine on the same network as the backend host?")
		os.Exit(1)
	}
	fmt.Println("✅ Backend is reachable")

	if email == "" || password == "" {
		fmt.Println("❌ CHECK_EMAIL / CHECK_PASSWORD not set")
		fmt.Println("\nPlease set:")
		fmt.Println("  export CHECK_EMAIL=teacher@example.com")
		fmt.Println("  export CHECK_PASSWORD=your_password")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := repository.NewAttendanceRESTClient(url, 5*time.Second)

	fmt.Println("\n🔐 Signing in...")
	user, err := client.SignIn(ctx, email, password)
	if err != nil {
		fmt.Printf("❌ Sign-in failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Signed in as %s (user ID %d, role %s)\n", user.Name, user.ID, user.Roles.Primary())

	fmt.Println("\n📅 Loading schedule...")
	var items []models.ScheduleItem
	if user.Roles.Primary() == models.RoleTeacher {
		items, err = client.ScheduleByLecturer(ctx, user.AccessToken, user.ID)
	} else if user.GroupID != nil {
		items, err = client.ScheduleByGroup(ctx, user.AccessToken, *user.GroupID)
	} else {
		fmt.Println("   ⚠️  Student has no group, skipping schedule")
	}
	if err != nil {
		fmt.Printf("❌ Schedule failed: %v\n", err)
		os.Exit(1)
	}
	for _, item := range items {
		fmt.Printf("   #%d %s %s\n", item.ID, item.StartTime.Local().Format("02.01"), item.TimeRange())
	}
	fmt.Printf("✅ %d lesson(s)\n", len(items))

	if err := client.SignOut(ctx, user.AccessToken); err != nil {
		fmt.Printf("   ⚠️  Logout failed: %v\n", err)
	}
	fmt.Println("\n🎉 Backend check passed")
}

// checkReachable accepts any HTTP answer; the backend has no health endpoint
func checkReachable(url string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
