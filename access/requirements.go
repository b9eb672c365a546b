package access

import "strings"

// Requirements maps a lower-case HTTP method and an ESI path template to
// the scopes a caller must hold
type Requirements map[string]map[string][]string

// For returns the scopes required by method and template. known is false
// when the table has no entry for the pair.
func (r Requirements) For(method, template string) (scopes []string, known bool) {
	byPath, ok := r[strings.ToLower(method)]
	if !ok {
		return nil, false
	}
	scopes, known = byPath[template]
	if !known {
		return nil, false
	}
	return append([]string(nil), scopes...), true
}

// Match finds the template that a concrete path such as
// /characters/123/assets/ was expanded from, along with the placeholder
// values. When several templates match, the one with the fewest
// placeholders wins.
func (r Requirements) Match(method, path string) (template string, params map[string]string, ok bool) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	best := -1
	for tpl := range r[strings.ToLower(method)] {
		p, n, matched := matchTemplate(tpl, segs)
		if !matched {
			continue
		}
		if best == -1 || n < best || (n == best && tpl < template) {
			template, params, best = tpl, p, n
		}
	}
	return template, params, best != -1
}

func matchTemplate(tpl string, segs []string) (map[string]string, int, bool) {
	parts := strings.Split(strings.Trim(tpl, "/"), "/")
	if len(parts) != len(segs) {
		return nil, 0, false
	}
	params := map[string]string{}
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			if segs[i] == "" {
				return nil, 0, false
			}
			params[part[1:len(part)-1]] = segs[i]
			continue
		}
		if part != segs[i] {
			return nil, 0, false
		}
	}
	return params, len(params), true
}

// Merge returns a new table holding r overlaid with other
func (r Requirements) Merge(other Requirements) Requirements {
	out := make(Requirements, len(r))
	for _, src := range []Requirements{r, other} {
		for method, byPath := range src {
			m := strings.ToLower(method)
			if out[m] == nil {
				out[m] = make(map[string][]string, len(byPath))
			}
			for tpl, scopes := range byPath {
				out[m][tpl] = scopes
			}
		}
	}
	return out
}

// DefaultRequirements lists the ESI endpoints this client knows about.
// Public endpoints carry the public scope so they are known without
// needing a token.
var DefaultRequirements = Requirements{
	"get": {
		"/alliances/":                                     {PublicScope},
		"/alliances/{alliance_id}/":                       {PublicScope},
		"/alliances/{alliance_id}/corporations/":          {PublicScope},
		"/characters/{character_id}/":                     {PublicScope},
		"/characters/{character_id}/assets/":              {"esi-assets.read_assets.v1"},
		"/characters/{character_id}/blueprints/":          {"esi-characters.read_blueprints.v1"},
		"/characters/{character_id}/clones/":              {"esi-clones.read_clones.v1"},
		"/characters/{character_id}/contacts/":            {"esi-characters.read_contacts.v1"},
		"/characters/{character_id}/contracts/":           {"esi-contracts.read_character_contracts.v1"},
		"/characters/{character_id}/corporationhistory/":  {PublicScope},
		"/characters/{character_id}/fittings/":            {"esi-fittings.read_fittings.v1"},
		"/characters/{character_id}/implants/":            {"esi-clones.read_implants.v1"},
		"/characters/{character_id}/industry/jobs/":       {"esi-industry.read_character_jobs.v1"},
		"/characters/{character_id}/killmails/recent/":    {"esi-killmails.read_killmails.v1"},
		"/characters/{character_id}/location/":            {"esi-location.read_location.v1"},
		"/characters/{character_id}/mail/":                {"esi-mail.read_mail.v1"},
		"/characters/{character_id}/mail/{mail_id}/":      {"esi-mail.read_mail.v1"},
		"/characters/{character_id}/notifications/":       {"esi-characters.read_notifications.v1"},
		"/characters/{character_id}/online/":              {"esi-location.read_online.v1"},
		"/characters/{character_id}/orders/":              {"esi-markets.read_character_orders.v1"},
		"/characters/{character_id}/portrait/":            {PublicScope},
		"/characters/{character_id}/roles/":               {"esi-characters.read_corporation_roles.v1"},
		"/characters/{character_id}/ship/":                {"esi-location.read_ship_type.v1"},
		"/characters/{character_id}/skillqueue/":          {"esi-skills.read_skillqueue.v1"},
		"/characters/{character_id}/skills/":              {"esi-skills.read_skills.v1"},
		"/characters/{character_id}/standings/":           {"esi-characters.read_standings.v1"},
		"/characters/{character_id}/wallet/":              {"esi-wallet.read_character_wallet.v1"},
		"/characters/{character_id}/wallet/journal/":      {"esi-wallet.read_character_wallet.v1"},
		"/characters/{character_id}/wallet/transactions/": {"esi-wallet.read_character_wallet.v1"},
		"/corporations/{corporation_id}/":                 {PublicScope},
		"/corporations/{corporation_id}/assets/":          {"esi-assets.read_corporation_assets.v1"},
		"/corporations/{corporation_id}/members/":         {"esi-corporations.read_corporation_membership.v1"},
		"/corporations/{corporation_id}/structures/":      {"esi-corporations.read_structures.v1"},
		"/corporations/{corporation_id}/wallets/":         {"esi-wallet.read_corporation_wallets.v1"},
		"/markets/{region_id}/orders/":                    {PublicScope},
		"/markets/prices/":                                {PublicScope},
		"/status/":                                        {PublicScope},
		"/universe/structures/{structure_id}/":            {"esi-universe.read_structures.v1"},
		"/universe/types/{type_id}/":                      {PublicScope},
	},
	"post": {
		"/characters/affiliation/":                     {PublicScope},
		"/characters/{character_id}/assets/names/":     {"esi-assets.read_assets.v1"},
		"/characters/{character_id}/fittings/":         {"esi-fittings.write_fittings.v1"},
		"/characters/{character_id}/mail/":             {"esi-mail.send_mail.v1"},
		"/corporations/{corporation_id}/assets/names/": {"esi-assets.read_corporation_assets.v1"},
		"/universe/ids/":                               {PublicScope},
		"/universe/names/":                             {PublicScope},
		"/ui/openwindow/marketdetails/":                {"esi-ui.open_window.v1"},
	},
	"put": {
		"/characters/{character_id}/mail/{mail_id}/": {"esi-mail.organize_mail.v1"},
	},
	"delete": {
		"/characters/{character_id}/fittings/{fitting_id}/": {"esi-fittings.write_fittings.v1"},
		"/characters/{character_id}/mail/{mail_id}/":        {"esi-mail.organize_mail.v1"},
	},
}
