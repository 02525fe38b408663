// Package discord connects the router to Discord through discordgo. Bot
// receives gateway events and implements router.Platform for the guild
// operations the commands need.
package discord
