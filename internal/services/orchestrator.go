package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/remediarr/remediarr/internal/classify"
	"github.com/remediarr/remediarr/internal/clock"
	"github.com/remediarr/remediarr/internal/config"
	"github.com/remediarr/remediarr/internal/cooldown"
	"github.com/remediarr/remediarr/internal/domain"
	"github.com/remediarr/remediarr/internal/eventbus"
	"github.com/remediarr/remediarr/internal/integration"
	"github.com/remediarr/remediarr/internal/logger"
	"github.com/remediarr/remediarr/internal/payload"
)

// maxConcurrentRemediations limits how many deliveries can be remediated
// simultaneously to avoid hammering the downstream APIs.
const maxConcurrentRemediations = 5

// coachKeywordLimit is how many example keywords a coaching comment lists.
const coachKeywordLimit = 5

// Orchestrator drives one remediation flow per webhook delivery:
// normalize, classify, act on the right downstream manager, verify the
// grab, report back to the issue.
type Orchestrator struct {
	cfg        *config.Config
	eventBus   eventbus.Publisher
	radarr     integration.RadarrClient
	sonarr     integration.SonarrClient
	jellyseerr integration.JellyseerrClient
	tmdb       integration.TMDBClient
	bazarr     integration.BazarrClient
	classifier *classify.Classifier
	cooldowns  *cooldown.Store
	verifier   *Verifier
	clk        clock.Clock

	semaphore chan struct{}
	wg        sync.WaitGroup
}

func NewOrchestrator(
	eb eventbus.Publisher,
	radarr integration.RadarrClient,
	sonarr integration.SonarrClient,
	jellyseerr integration.JellyseerrClient,
	tmdb integration.TMDBClient,
	bazarr integration.BazarrClient,
	clk clock.Clock,
) *Orchestrator {
	cfg := config.Get()
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Orchestrator{
		cfg:        cfg,
		eventBus:   eb,
		radarr:     radarr,
		sonarr:     sonarr,
		jellyseerr: jellyseerr,
		tmdb:       tmdb,
		bazarr:     bazarr,
		classifier: classify.NewFromConfig(cfg),
		cooldowns:  cooldown.NewStore(cfg.IssueCooldown, clk),
		verifier:   NewVerifier(clk, cfg.VerifyPoll),
		clk:        clk,
		semaphore:  make(chan struct{}, maxConcurrentRemediations),
	}
}

func (o *Orchestrator) Start() {
	o.eventBus.Subscribe(domain.WebhookReceived, o.handleWebhook)
}

// Wait blocks until all in-flight remediations finish. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) handleWebhook(event domain.Event) {
	data, ok := event.ParseWebhookEventData()
	if !ok {
		logger.Errorf("Orchestrator: webhook event %d has no raw body", event.ID)
		return
	}

	o.semaphore <- struct{}{}
	o.wg.Add(1)
	go func() {
		defer func() {
			<-o.semaphore
			o.wg.Done()
		}()
		o.Process(context.Background(), data)
	}()
}

// Process runs the full remediation flow for one delivery.
func (o *Orchestrator) Process(ctx context.Context, data domain.WebhookEventData) {
	ic, err := payload.Normalize([]byte(data.RawBody))
	if err != nil {
		logger.Warnf("Orchestrator: dropping undecodable webhook %s: %v", data.DeliveryID, err)
		o.publishIgnored(data.DeliveryID, nil, "undecodable payload")
		return
	}
	ic.DeliveryID = data.DeliveryID

	if skip, reason := o.shouldSkip(ic); skip {
		logger.Infof("Orchestrator: ignoring delivery %s (%s)", ic.DeliveryID, reason)
		o.publishIgnored(ic.DeliveryID, ic, reason)
		return
	}

	// The webhook payload is a hint only; when it lacks season/episode or
	// ids, the tracker's issue record is the authoritative source.
	if ic.IssueID != nil {
		if insufficient, _ := payload.InsufficientContext(ic); insufficient {
			o.enrichFromTracker(ctx, ic)
		}
	}

	if insufficient, reason := payload.InsufficientContext(ic); insufficient {
		logger.Infof("Orchestrator: insufficient context for delivery %s: %s", ic.DeliveryID, reason)
		o.publishIgnored(ic.DeliveryID, ic, "insufficient context: "+reason)
		return
	}

	if ic.IssueID != nil {
		o.cooldowns.Prune()
		if active, remaining := o.cooldowns.Active(*ic.IssueID); active {
			logger.Infof("Orchestrator: issue %d in cooldown (%s left), skipping", *ic.IssueID, remaining.Round(time.Second))
			o.publishIgnored(ic.DeliveryID, ic, "cooldown")
			return
		}
	}

	category, matched := o.classifier.Classify(ic.Text(), ic.MediaType)
	if category == domain.CategoryNone {
		o.coach(ctx, ic)
		return
	}

	// Arm the cooldown before acting, and refresh it when done. Grab
	// verification can hold this delivery for the whole verify window; a
	// duplicate delivery arriving meanwhile must not run a second
	// delete-and-search pass.
	if ic.IssueID != nil {
		o.cooldowns.Touch(*ic.IssueID)
		defer o.cooldowns.Touch(*ic.IssueID)
	}

	o.publish(ic, domain.IssueClassified, map[string]interface{}{
		"media_type": string(ic.MediaType),
		"category":   string(category),
		"matched":    matched,
	})
	logger.Infof("Orchestrator: %s classified as %q (matched %q)", ic.DisplayRef(), category, matched)

	switch ic.MediaType {
	case domain.MediaMovie:
		o.remediateMovie(ctx, ic, category)
	case domain.MediaSeries:
		o.remediateSeries(ctx, ic, category)
	}
}

// shouldSkip filters deliveries out before any downstream call: wrong event
// types, the bot's own comments, test pings.
func (o *Orchestrator) shouldSkip(ic *domain.IssueContext) (bool, string) {
	if ic.Event != "" {
		lower := strings.ToLower(ic.Event)
		if strings.Contains(lower, "test") {
			return true, "test notification"
		}
		if !strings.Contains(lower, "issue") && !strings.Contains(lower, "comment") {
			return true, "unhandled event type " + ic.Event
		}
	}
	if strings.HasPrefix(ic.CommentText, config.BotPrefix) {
		return true, "own comment"
	}
	if o.cfg.JellyseerrBotUsername != "" && ic.CommentedBy != "" &&
		strings.EqualFold(ic.CommentedBy, o.cfg.JellyseerrBotUsername) {
		return true, "bot user comment"
	}
	return false, ""
}

// enrichFromTracker fetches the issue from Jellyseerr and merges missing
// fields into the context. Failures leave the context as it was.
func (o *Orchestrator) enrichFromTracker(ctx context.Context, ic *domain.IssueContext) {
	doc, err := o.jellyseerr.FetchIssue(ctx, *ic.IssueID)
	if err != nil {
		logger.Warnf("Orchestrator: issue %d fetch failed: %v", *ic.IssueID, err)
		return
	}
	payload.MergeFromIssueDoc(ic, doc)
}

// coach posts a comment listing example keywords so the reporter can
// retrigger remediation with a phrase the classifier understands.
func (o *Orchestrator) coach(ctx context.Context, ic *domain.IssueContext) {
	logger.Infof("Orchestrator: no keyword match for %s, coaching", ic.DisplayRef())

	if !o.cfg.JellyseerrCoachReporters || ic.IssueID == nil {
		o.publishIgnored(ic.DeliveryID, ic, "no keyword match")
		return
	}

	// If our coaching tip is already the latest comment on the issue,
	// posting it again just spams the reporter.
	if doc, err := o.jellyseerr.FetchIssue(ctx, *ic.IssueID); err == nil {
		if _, _, botReplied, _ := integration.LatestHumanComment(doc, config.BotPrefix, o.cfg.JellyseerrBotUsername); botReplied {
			logger.Infof("Orchestrator: issue %d already has our reply as the latest comment, not coaching again", *ic.IssueID)
			o.publishIgnored(ic.DeliveryID, ic, "already coached")
			return
		}
	}

	keywords := o.classifier.Keywords(ic.MediaType, domain.Category(strings.ToLower(ic.IssueType)))
	if len(keywords) == 0 {
		keywords = o.classifier.AllKeywords(ic.MediaType)
	}
	if len(keywords) > coachKeywordLimit {
		keywords = keywords[:coachKeywordLimit]
	}

	msg := o.render(o.cfg.MsgKeywordCoach, ic, "", 0, keywords)
	if err := o.comment(ctx, ic, msg); err != nil {
		return
	}
	o.publish(ic, domain.CoachingPosted, map[string]interface{}{
		"media_type": string(ic.MediaType),
		"issue_type": ic.IssueType,
		"keywords":   strings.Join(keywords, ","),
	})
}

func (o *Orchestrator) remediateMovie(ctx context.Context, ic *domain.IssueContext, category domain.Category) {
	movie, err := o.radarr.LookupByTMDB(ctx, *ic.TMDBID)
	if err != nil {
		logger.Errorf("Orchestrator: Radarr lookup tmdb:%d failed: %v", *ic.TMDBID, err)
		return
	}
	if movie == nil {
		o.publish(ic, domain.MediaNotFound, map[string]interface{}{"media_type": "movie", "tmdb_id": *ic.TMDBID})
		o.comment(ctx, ic, "I couldn't find this movie in the library manager, so nothing was changed.")
		return
	}

	if category == domain.CategorySubtitle && o.bazarr.Enabled() {
		o.forceSubtitleRedownload(ctx, movie.Title,
			func() ([]integration.Subtitle, error) { return o.bazarr.MovieSubtitles(ctx, movie.ID) },
			func(sub integration.Subtitle) error { return o.bazarr.DeleteMovieSubtitle(ctx, movie.ID, sub.ID) })
		o.delegateSubtitles(ctx, ic, movie.Title, func() error {
			return o.bazarr.TriggerMovieSubtitleSearch(ctx, movie.ID)
		}, o.cfg.MsgMovieSubHandled)
		return
	}

	// A wrong-movie grab gets blocklisted and deleted either way; whether
	// a re-search is worth it depends on a digital release existing.
	search := true
	if category == domain.CategoryWrong && o.cfg.SearchOnlyIfDigitalRelease {
		released, date, err := o.tmdb.IsDigitallyReleased(ctx, *ic.TMDBID)
		if err != nil {
			logger.Warnf("Orchestrator: TMDB release check for %d failed, proceeding: %v", *ic.TMDBID, err)
		} else if !released {
			search = false
			logger.Infof("Orchestrator: %q has no digital release yet (expected %s), holding the re-search", movie.Title, pick(date != "", date, "unknown"))
		}
	}

	baseline := o.clk.Now()

	if o.cfg.EnableBlocklist && category != domain.CategoryOther {
		if marked, err := o.radarr.MarkLastGrabFailed(ctx, movie.ID); err != nil {
			logger.Warnf("Orchestrator: blocklist for %q failed: %v", movie.Title, err)
		} else if marked {
			o.publish(ic, domain.BlocklistApplied, map[string]interface{}{"title": movie.Title})
		}
	}

	deleted := 0
	if o.deletesFiles(category) {
		deleted = o.deleteMovieFiles(ctx, ic, movie)
	}

	if !search {
		if err := o.comment(ctx, ic, o.render(o.cfg.MsgMovieWrongNoRelease, ic, movie.Title, deleted, nil)); err != nil {
			return
		}
		o.closeIssue(ctx, ic)
		return
	}

	if err := o.radarr.TriggerSearch(ctx, movie.ID); err != nil {
		logger.Errorf("Orchestrator: Radarr search for %q failed: %v", movie.Title, err)
		o.publish(ic, domain.SearchFailed, map[string]interface{}{"title": movie.Title, "error": err.Error()})
		return
	}
	o.publish(ic, domain.SearchStarted, map[string]interface{}{"title": movie.Title, "media_type": "movie"})

	grabbed := o.verify(ctx, ic, o.radarr, movie.ID, movie.Title, baseline, o.cfg.RadarrVerifyGrab, deleted)
	o.report(ctx, ic, reportInput{
		title:    movie.Title,
		category: category,
		deleted:  deleted,
		grabbed:  grabbed,
		grabbedTemplate: pick(deleted > 0,
			o.cfg.MsgMovieReplacedAndGrabbed, o.cfg.MsgMovieSearchOnlyGrabbed),
		timeoutTemplate: o.movieTimeoutTemplate(category),
	})
}

func (o *Orchestrator) remediateSeries(ctx context.Context, ic *domain.IssueContext, category domain.Category) {
	series, err := o.sonarr.LookupByTVDB(ctx, *ic.TVDBID)
	if err != nil {
		logger.Errorf("Orchestrator: Sonarr lookup tvdb:%d failed: %v", *ic.TVDBID, err)
		return
	}
	if series == nil {
		o.publish(ic, domain.MediaNotFound, map[string]interface{}{"media_type": "tv", "tvdb_id": *ic.TVDBID})
		o.comment(ctx, ic, "I couldn't find this series in the library manager, so nothing was changed.")
		return
	}

	episode, err := o.findEpisode(ctx, series.ID, *ic.Season, *ic.Episode)
	if err != nil {
		logger.Errorf("Orchestrator: episode list for %q failed: %v", series.Title, err)
		return
	}
	if episode == nil {
		o.comment(ctx, ic, fmt.Sprintf("S%02dE%02d doesn't exist for this series in the library manager, so nothing was changed.", *ic.Season, *ic.Episode))
		return
	}

	if category == domain.CategorySubtitle && o.bazarr.Enabled() {
		o.forceSubtitleRedownload(ctx, series.Title,
			func() ([]integration.Subtitle, error) { return o.bazarr.EpisodeSubtitles(ctx, episode.ID) },
			func(sub integration.Subtitle) error { return o.bazarr.DeleteEpisodeSubtitle(ctx, episode.ID, sub.ID) })
		o.delegateSubtitles(ctx, ic, series.Title, func() error {
			return o.bazarr.TriggerEpisodeSubtitleSearch(ctx, episode.ID)
		}, o.cfg.MsgTVSubHandled)
		return
	}

	baseline := o.clk.Now()

	if o.cfg.EnableBlocklist && category != domain.CategoryOther {
		if marked, err := o.sonarr.MarkLastGrabFailed(ctx, episode.ID); err != nil {
			logger.Warnf("Orchestrator: blocklist for %q episode %d failed: %v", series.Title, episode.ID, err)
		} else if marked {
			o.publish(ic, domain.BlocklistApplied, map[string]interface{}{"title": series.Title})
		}
	}

	deleted := 0
	if o.deletesFiles(category) && episode.HasFile && episode.EpisodeFileID > 0 {
		o.publish(ic, domain.DeletionStarted, map[string]interface{}{"title": series.Title, "media_type": "tv"})
		if err := o.sonarr.DeleteEpisodeFile(ctx, episode.EpisodeFileID); err != nil {
			logger.Warnf("Orchestrator: delete episode file %d failed: %v", episode.EpisodeFileID, err)
			o.publish(ic, domain.DeletionFailed, map[string]interface{}{"title": series.Title, "error": err.Error()})
		} else {
			deleted = 1
			o.publish(ic, domain.DeletionCompleted, map[string]interface{}{"title": series.Title, "deleted_files": int64(1)})
		}
	}

	// Episode-scoped search only. A season or series wide search could
	// replace files the reporter never complained about.
	if err := o.sonarr.TriggerEpisodeSearch(ctx, []int64{episode.ID}); err != nil {
		logger.Errorf("Orchestrator: Sonarr episode search for %q failed: %v", series.Title, err)
		o.publish(ic, domain.SearchFailed, map[string]interface{}{"title": series.Title, "error": err.Error()})
		return
	}
	o.publish(ic, domain.SearchStarted, map[string]interface{}{"title": series.Title, "media_type": "tv"})

	grabbed := o.verify(ctx, ic, o.sonarr, episode.ID, series.Title, baseline, o.cfg.SonarrVerifyGrab, deleted)
	o.report(ctx, ic, reportInput{
		title:    series.Title,
		category: category,
		deleted:  deleted,
		grabbed:  grabbed,
		grabbedTemplate: pick(deleted > 0,
			o.cfg.MsgTVReplacedAndGrabbed, o.cfg.MsgTVSearchOnlyGrabbed),
		timeoutTemplate: o.seriesTimeoutTemplate(category),
	})
}

func (o *Orchestrator) findEpisode(ctx context.Context, seriesID int64, season, episodeNum int) (*integration.Episode, error) {
	episodes, err := o.sonarr.GetEpisodes(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	for i := range episodes {
		if episodes[i].SeasonNumber == season && episodes[i].EpisodeNumber == episodeNum {
			return &episodes[i], nil
		}
	}
	return nil, nil
}

func (o *Orchestrator) deleteMovieFiles(ctx context.Context, ic *domain.IssueContext, movie *integration.Movie) int {
	files, err := o.radarr.GetMovieFiles(ctx, movie.ID)
	if err != nil {
		logger.Warnf("Orchestrator: list files for %q failed: %v", movie.Title, err)
		return 0
	}
	if len(files) == 0 {
		return 0
	}

	o.publish(ic, domain.DeletionStarted, map[string]interface{}{"title": movie.Title, "media_type": "movie"})
	deleted := 0
	for _, f := range files {
		if err := o.radarr.DeleteMovieFile(ctx, f.ID); err != nil {
			logger.Warnf("Orchestrator: delete file %d (%s) failed: %v", f.ID, f.Path, err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		o.publish(ic, domain.DeletionCompleted, map[string]interface{}{"title": movie.Title, "deleted_files": int64(deleted)})
	} else {
		o.publish(ic, domain.DeletionFailed, map[string]interface{}{"title": movie.Title})
	}
	return deleted
}

// forceSubtitleRedownload deletes the existing subtitle tracks in the
// configured languages so Bazarr treats them as wanted again. Off unless
// BAZARR_FORCE_REDOWNLOAD is set; a plain search won't refetch a subtitle
// Bazarr considers present.
func (o *Orchestrator) forceSubtitleRedownload(ctx context.Context, title string, list func() ([]integration.Subtitle, error), del func(integration.Subtitle) error) {
	if !o.cfg.BazarrForceRedownload {
		return
	}

	wanted := make(map[string]bool)
	for _, lang := range strings.Split(o.cfg.BazarrSubtitleLanguages, ",") {
		if lang = strings.ToLower(strings.TrimSpace(lang)); lang != "" {
			wanted[lang] = true
		}
	}

	subs, err := list()
	if err != nil {
		logger.Warnf("Orchestrator: subtitle list for %q failed: %v", title, err)
		return
	}

	removed := 0
	for _, sub := range subs {
		if !wanted[strings.ToLower(sub.Code2)] {
			continue
		}
		if err := del(sub); err != nil {
			logger.Warnf("Orchestrator: delete subtitle %q (%s) for %q failed: %v", sub.Path, sub.Code2, title, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Infof("Orchestrator: removed %d subtitle track(s) for %q before the re-search", removed, title)
	}
}

// delegateSubtitles hands a subtitle issue to Bazarr. There is nothing to
// grab-verify: subtitle downloads don't go through the manager's queue.
func (o *Orchestrator) delegateSubtitles(ctx context.Context, ic *domain.IssueContext, title string, trigger func() error, template string) {
	if err := trigger(); err != nil {
		logger.Errorf("Orchestrator: Bazarr subtitle search for %q failed: %v", title, err)
		o.publish(ic, domain.SearchFailed, map[string]interface{}{"title": title, "error": err.Error()})
		return
	}
	o.publish(ic, domain.SearchStarted, map[string]interface{}{"title": title, "subtitle": true})

	if err := o.comment(ctx, ic, o.render(template, ic, title, 0, nil)); err != nil {
		return
	}
	o.closeIssue(ctx, ic)
}

func (o *Orchestrator) verify(ctx context.Context, ic *domain.IssueContext, checker GrabChecker, id int64, title string, baseline time.Time, budget time.Duration, deleted int) bool {
	o.publish(ic, domain.VerificationStarted, map[string]interface{}{"title": title})

	grabbed := o.verifier.WaitForGrab(ctx, checker, id, baseline, budget)

	outcome := map[string]interface{}{
		"title":         title,
		"media_type":    string(ic.MediaType),
		"deleted_files": int64(deleted),
	}
	if ic.IssueID != nil {
		outcome["issue_id"] = *ic.IssueID
	}
	if ic.Season != nil && ic.Episode != nil {
		outcome["season"] = int64(*ic.Season)
		outcome["episode"] = int64(*ic.Episode)
	}
	if grabbed {
		o.publish(ic, domain.GrabConfirmed, outcome)
	} else {
		o.publish(ic, domain.VerificationTimeout, outcome)
	}
	return grabbed
}

type reportInput struct {
	title           string
	category        domain.Category
	deleted         int
	grabbed         bool
	grabbedTemplate string
	timeoutTemplate string
}

// report posts the single final comment and closes the issue on a
// confirmed grab.
func (o *Orchestrator) report(ctx context.Context, ic *domain.IssueContext, in reportInput) {
	if !in.grabbed {
		o.comment(ctx, ic, o.render(in.timeoutTemplate, ic, in.title, in.deleted, nil))
		return
	}

	if err := o.comment(ctx, ic, o.render(in.grabbedTemplate, ic, in.title, in.deleted, nil)); err != nil {
		return
	}
	o.closeIssue(ctx, ic)
}

func (o *Orchestrator) closeIssue(ctx context.Context, ic *domain.IssueContext) {
	if !o.cfg.JellyseerrCloseIssues || ic.IssueID == nil {
		return
	}
	if err := o.jellyseerr.CloseIssue(ctx, *ic.IssueID); err != nil {
		logger.Warnf("Orchestrator: close issue %d failed: %v", *ic.IssueID, err)
		o.publish(ic, domain.IssueCloseFailed, map[string]interface{}{"error": err.Error()})
		o.comment(ctx, ic, o.render(o.cfg.MsgAutocloseFail, ic, "", 0, nil))
		return
	}
	o.publish(ic, domain.IssueClosed, nil)
	if o.cfg.JellyseerrCloseMessage != "" {
		o.comment(ctx, ic, o.cfg.JellyseerrCloseMessage)
	}
}

// comment posts to the issue with the bot prefix prepended. Failures are
// logged, published, and returned so callers can stop a close that would
// otherwise land without its explanation.
func (o *Orchestrator) comment(ctx context.Context, ic *domain.IssueContext, msg string) error {
	if !o.cfg.JellyseerrCommentOnAction || ic.IssueID == nil {
		return nil
	}
	full := config.BotPrefix + " " + msg
	if err := o.jellyseerr.PostComment(ctx, *ic.IssueID, full); err != nil {
		logger.Warnf("Orchestrator: comment on issue %d failed: %v", *ic.IssueID, err)
		o.publish(ic, domain.CommentFailed, map[string]interface{}{"error": err.Error()})
		return err
	}
	o.publish(ic, domain.CommentPosted, map[string]interface{}{"message": full})
	return nil
}

// deletesFiles decides whether a category removes the existing file before
// searching. Subtitle deletions are off by default so a working video
// track isn't thrown away over a bad subtitle.
func (o *Orchestrator) deletesFiles(category domain.Category) bool {
	switch category {
	case domain.CategoryAudio, domain.CategoryVideo, domain.CategoryWrong:
		return true
	case domain.CategorySubtitle:
		return o.cfg.SubtitleDeleteFiles
	default:
		return false
	}
}

func (o *Orchestrator) movieTimeoutTemplate(category domain.Category) string {
	switch category {
	case domain.CategoryAudio:
		return o.cfg.MsgMovieAudioHandled
	case domain.CategoryVideo:
		return o.cfg.MsgMovieVideoHandled
	case domain.CategorySubtitle:
		return o.cfg.MsgMovieSubHandled
	case domain.CategoryWrong:
		return o.cfg.MsgMovieWrongHandled
	default:
		return o.cfg.MsgMovieOtherCoach
	}
}

func (o *Orchestrator) seriesTimeoutTemplate(category domain.Category) string {
	switch category {
	case domain.CategoryAudio:
		return o.cfg.MsgTVAudioHandled
	case domain.CategoryVideo:
		return o.cfg.MsgTVVideoHandled
	case domain.CategorySubtitle:
		return o.cfg.MsgTVSubHandled
	default:
		return o.cfg.MsgTVOtherCoach
	}
}

// render substitutes the message template placeholders.
func (o *Orchestrator) render(template string, ic *domain.IssueContext, title string, deleted int, keywords []string) string {
	season, episode := "??", "??"
	if ic.Season != nil {
		season = fmt.Sprintf("%02d", *ic.Season)
	}
	if ic.Episode != nil {
		episode = fmt.Sprintf("%02d", *ic.Episode)
	}
	return strings.NewReplacer(
		"{title}", title,
		"{season:02d}", season,
		"{episode:02d}", episode,
		"{deleted}", strconv.Itoa(deleted),
		"{keywords}", strings.Join(keywords, ", "),
	).Replace(template)
}

func (o *Orchestrator) publish(ic *domain.IssueContext, eventType domain.EventType, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, present := data["issue_id"]; !present && ic.IssueID != nil {
		data["issue_id"] = *ic.IssueID
	}
	data["delivery_id"] = ic.DeliveryID

	if err := o.eventBus.Publish(domain.Event{
		AggregateType: "issue",
		AggregateID:   aggregateID(ic),
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Orchestrator: publish %s failed: %v", eventType, err)
	}
}

func (o *Orchestrator) publishIgnored(deliveryID string, ic *domain.IssueContext, reason string) {
	data := map[string]interface{}{
		"delivery_id": deliveryID,
		"reason":      reason,
	}
	aggID := deliveryID
	if ic != nil {
		aggID = aggregateID(ic)
		if ic.IssueID != nil {
			data["issue_id"] = *ic.IssueID
		}
	}
	if err := o.eventBus.Publish(domain.Event{
		AggregateType: "issue",
		AggregateID:   aggID,
		EventType:     domain.IssueIgnored,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Orchestrator: publish %s failed: %v", domain.IssueIgnored, err)
	}
}

func aggregateID(ic *domain.IssueContext) string {
	if ic.IssueID != nil {
		return strconv.FormatInt(*ic.IssueID, 10)
	}
	return ic.DeliveryID
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
