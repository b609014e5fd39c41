/*
Package cfddns keeps the A records of a Cloudflare zone pointed at the caller's public IPv4 address.

Usage will always start with [LoadConfig] and [New],
which returns a [Client] for one zone and a list of subdomains.
[Client.RunDDNS] performs a single pass:
it resolves the public address, lists the zone's A records,
and patches every configured record whose content differs.

The package does not schedule itself.
Run the cfddns command from a timer (cron, a systemd timer, a Kubernetes CronJob)
to keep the records current.
*/
package cfddns
