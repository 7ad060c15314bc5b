// Package chat connects the relay to its IRC channel.
//
// Bot speaks plain RFC 2812 through gopkg.in/irc.v4 by default, or the Twitch
// chat dialect through go-twitch-irc when Options.Twitch is set. It is both the Outbound Channel (Send) used by the stream ingestor and the command
// dispatcher, and the source of the two inbound events the relay cares about:
//   - the bot joining its channel, which starts the stream ingestor;
//   - public messages addressed to the bot's nickname ("relaybot: get"),
//     whose remainder is handed to the command dispatcher.
//
// Every outgoing message is sanitized (newline runs collapsed, truncated to
// MaxMessageBytes) and paced by a token-bucket flood guard so bursts of feed
// items and command replies do not get the bot kicked by the server.
package chat
